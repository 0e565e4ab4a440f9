package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable checked first by Discover.
const EnvConfigPath = "NODEAGENT_CONFIG"

// SearchPaths returns the config locations Discover checks, in order.
func SearchPaths() []string {
	var paths []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nodeagent", "config.yaml"))
	}
	return append(paths, "/etc/nodeagent/config.yaml", "./config.yaml")
}

// Discover returns the first existing path from SearchPaths.
func Discover() (string, bool) {
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
