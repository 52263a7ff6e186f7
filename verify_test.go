// Structural checks over the source tree: every library package is imported
// by production code, every package has tests, and no interface is satisfied
// only by a no-op.
//
// Run: go test -run 'TestNoDeadPackages|TestPackagesHaveTests|TestNoopOnlyInterfaces' .
package realty_platform_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/txn2/realty-platform"

// sourceFile is a non-test Go file in the module.
type sourceFile struct {
	path    string // slash-separated, relative to the module root
	content string
}

func (f sourceFile) pkgPath() string {
	return modulePath + "/" + filepath.ToSlash(filepath.Dir(f.path))
}

// sourceFiles returns the non-test Go files under roots, skipping
// underscore-prefixed and testdata directories as the go tool does.
func sourceFiles(t *testing.T, roots ...string) []sourceFile {
	t.Helper()
	var files []sourceFile
	for _, root := range roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				return nil
			}
			b, err := os.ReadFile(path) //nolint:gosec // reads module sources
			if err != nil {
				return err
			}
			files = append(files, sourceFile{path: filepath.ToSlash(path), content: string(b)})
			return nil
		})
		require.NoError(t, err)
	}
	return files
}

// TestNoDeadPackages fails for a package under pkg/ or internal/ that no
// production file imports. Such a package compiles and passes its own tests
// but never runs.
func TestNoDeadPackages(t *testing.T) {
	libs := map[string]bool{}
	for _, f := range sourceFiles(t, "pkg", "internal") {
		libs[f.pkgPath()] = false
	}
	require.NotEmpty(t, libs)

	fset := token.NewFileSet()
	for _, f := range sourceFiles(t, "pkg", "internal", "cmd") {
		parsed, err := parser.ParseFile(fset, f.path, f.content, parser.ImportsOnly)
		require.NoError(t, err, f.path)
		for _, imp := range parsed.Imports {
			p, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			if _, ok := libs[p]; ok && p != f.pkgPath() {
				libs[p] = true
			}
		}
	}

	for p, used := range libs {
		assert.True(t, used, "package %s is never imported by non-test code; wire it in or delete it", p)
	}
}

// TestPackagesHaveTests fails for a package without any _test.go file.
func TestPackagesHaveTests(t *testing.T) {
	dirs := map[string]bool{}
	for _, f := range sourceFiles(t, "pkg", "internal", "cmd") {
		dirs[filepath.Dir(f.path)] = true
	}
	for dir := range dirs {
		tests, err := filepath.Glob(filepath.Join(dir, "*_test.go"))
		require.NoError(t, err)
		assert.NotEmpty(t, tests, "package %s has no tests", dir)
	}
}

// TestNoopOnlyInterfaces fails when every compile-time assertion for an
// interface names a no-op type. A feature built on nothing but a no-op
// passes every other check while doing nothing.
func TestNoopOnlyInterfaces(t *testing.T) {
	assertRe := regexp.MustCompile(`var\s+_\s+(\S+)\s*=\s*\(\*(\w+)\)\(nil\)`)

	impls := map[string][]string{}
	for _, f := range sourceFiles(t, "pkg", "internal") {
		for _, m := range assertRe.FindAllStringSubmatch(f.content, -1) {
			impls[m[1]] = append(impls[m[1]], m[2])
		}
	}
	require.NotEmpty(t, impls, "expected interface compliance assertions")

	for iface, types := range impls {
		working := 0
		for _, name := range types {
			if !strings.Contains(strings.ToLower(name), "noop") {
				working++
			}
		}
		assert.Positive(t, working, "interface %s is only implemented by no-ops %v", iface, types)
	}
}
