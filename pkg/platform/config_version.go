package platform

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CurrentConfigVersion is the config apiVersion this build writes and reads.
const CurrentConfigVersion = "v1"

// VersionStatus is the support state of a config apiVersion.
type VersionStatus int

const (
	// VersionCurrent is accepted silently.
	VersionCurrent VersionStatus = iota
	// VersionDeprecated is accepted with a warning.
	VersionDeprecated
	// VersionRemoved is rejected.
	VersionRemoved
)

func (s VersionStatus) String() string {
	switch s {
	case VersionCurrent:
		return "current"
	case VersionDeprecated:
		return "deprecated"
	case VersionRemoved:
		return "removed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// VersionInfo describes one config apiVersion.
type VersionInfo struct {
	Version string
	Status  VersionStatus

	// Notice is logged for deprecated versions and returned in the error
	// for removed ones.
	Notice string
}

// VersionRegistry maps apiVersion strings to their support state.
type VersionRegistry struct {
	versions map[string]*VersionInfo
	current  string
}

// NewVersionRegistry creates an empty registry.
func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{versions: make(map[string]*VersionInfo)}
}

// Register adds a version. The first VersionCurrent entry becomes Current.
func (r *VersionRegistry) Register(info *VersionInfo) {
	r.versions[info.Version] = info
	if info.Status == VersionCurrent && r.current == "" {
		r.current = info.Version
	}
}

// Get looks up a version.
func (r *VersionRegistry) Get(version string) (*VersionInfo, bool) {
	info, ok := r.versions[version]
	return info, ok
}

// Current returns the current version, or "" for an empty registry.
func (r *VersionRegistry) Current() string {
	return r.current
}

// Supported lists every version that is not removed, sorted.
func (r *VersionRegistry) Supported() []string {
	out := make([]string, 0, len(r.versions))
	for v, info := range r.versions {
		if info.Status != VersionRemoved {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// PeekVersion reads only the apiVersion field. Missing, empty or
// unparseable input reports CurrentConfigVersion so that files written
// before versioning keep loading.
func PeekVersion(data []byte) string {
	var envelope struct {
		APIVersion string `yaml:"apiVersion"`
	}
	if err := yaml.Unmarshal(data, &envelope); err != nil {
		return CurrentConfigVersion
	}
	if v := strings.TrimSpace(envelope.APIVersion); v != "" {
		return v
	}
	return CurrentConfigVersion
}

// DefaultRegistry returns the registry this build understands.
func DefaultRegistry() *VersionRegistry {
	r := NewVersionRegistry()
	r.Register(&VersionInfo{Version: CurrentConfigVersion, Status: VersionCurrent})
	return r
}

// resolveVersion rejects unknown and removed versions and warns about
// deprecated ones.
func resolveVersion(reg *VersionRegistry, version string) (*VersionInfo, error) {
	info, ok := reg.Get(version)
	if !ok {
		return nil, fmt.Errorf("unsupported config apiVersion %q; supported versions: %s",
			version, strings.Join(reg.Supported(), ", "))
	}
	switch info.Status {
	case VersionRemoved:
		if info.Notice != "" {
			return nil, fmt.Errorf("config apiVersion %q has been removed; %s", version, info.Notice)
		}
		return nil, fmt.Errorf("config apiVersion %q has been removed", version)
	case VersionDeprecated:
		slog.Warn("platform: deprecated config apiVersion",
			"version", version, "current", reg.Current(), "notice", info.Notice)
	}
	return info, nil
}
