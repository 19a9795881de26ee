// Package handlerenv reads the host-supplied HandlerEnvironment.json
// descriptor (spec §6) that tells this process where to find its config,
// status, log, and handler-state directories. It is consumed read-only.
package handlerenv

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Environment is the set of filesystem locations the host agent hands this
// extension on every invocation.
type Environment struct {
	LogFolder          string
	ConfigFolder       string
	StatusFolder       string
	HandlerStateFolder string
}

type handlerEnvironmentDoc struct {
	Version            string `json:"version"`
	HandlerEnvironment struct {
		LogFolder          string `json:"logFolder"`
		ConfigFolder       string `json:"configFolder"`
		StatusFolder       string `json:"statusFolder"`
		HandlerStateFolder string `json:"handlerStateFolder"`
	} `json:"handlerEnvironment"`
}

// Load reads and parses a HandlerEnvironment.json file located at path.
func Load(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// The host delivers this as a one-element JSON array.
	var docs []handlerEnvironmentDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		var single handlerEnvironmentDoc
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, err
		}
		docs = []handlerEnvironmentDoc{single}
	}
	if len(docs) == 0 {
		return nil, os.ErrInvalid
	}

	he := docs[0].HandlerEnvironment
	return &Environment{
		LogFolder:          he.LogFolder,
		ConfigFolder:       he.ConfigFolder,
		StatusFolder:       he.StatusFolder,
		HandlerStateFolder: he.HandlerStateFolder,
	}, nil
}

// Discover resolves the environment descriptor from the current working
// directory, matching where the host agent places it alongside the
// extension, falling back to sensible Linux paths if the descriptor is
// absent (useful for local testing and the -diag tool).
func Discover() (*Environment, error) {
	candidate := filepath.Join(".", "HandlerEnvironment.json")
	if _, err := os.Stat(candidate); err == nil {
		return Load(candidate)
	}
	return &Environment{
		LogFolder:          "/var/log/azure/patchcore",
		ConfigFolder:       "/var/lib/waagent/Extension/config",
		StatusFolder:       "/var/lib/waagent/Extension/status",
		HandlerStateFolder: "/var/lib/waagent/Extension/handler-state",
	}, nil
}

// EnsureDirs creates every directory the environment names, if missing.
func (e *Environment) EnsureDirs() error {
	for _, dir := range []string{e.LogFolder, e.ConfigFolder, e.StatusFolder, e.HandlerStateFolder} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
