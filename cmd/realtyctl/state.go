package main

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/txn2/realty-platform/pkg/lifecycle"
)

// State keys kept alongside the admin keys the lifecycle tracker manages.
const (
	keyServer  = "server"
	keySession = "session"
)

const defaultServer = "http://localhost:8080"

// defaultStatePath returns ~/.realtyctl/state.json.
func defaultStatePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".realtyctl", "state.json"), nil
}

func openState(path string) (*lifecycle.FileStorage, error) {
	if path == "" {
		var err error
		if path, err = defaultStatePath(); err != nil {
			return nil, err
		}
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding state path: %w", err)
	}
	return lifecycle.OpenFileStorage(expanded)
}
