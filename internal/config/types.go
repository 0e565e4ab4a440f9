package config

import "time"

// Config represents the complete nodeagent configuration. The agent reads
// every section except gateway; nodectl reads gateway.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	API       APIConfig       `yaml:"api"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Logs      LogsConfig      `yaml:"logs"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Resources ResourcesConfig `yaml:"resources"`
	State     StateConfig     `yaml:"state"`
	Gateway   GatewayConfig   `yaml:"gateway"`

	// SourcePath is the file the config was loaded from, empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// APIConfig defines the agent's HTTP listener.
type APIConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WorkspaceConfig defines the directory jobs run in.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
	// Keep lists top-level entries that clear-workspace never removes.
	Keep []string `yaml:"keep"`
	// MaxUpload caps the size of an uploaded archive in bytes.
	MaxUpload int64 `yaml:"max_upload"`
}

// LogsConfig sizes the in-memory job output ring.
type LogsConfig struct {
	Capacity int `yaml:"capacity"`
}

// JobsConfig defines how commands are spawned and stopped.
type JobsConfig struct {
	Shell string `yaml:"shell"`
	// KillGrace is how long an interrupted job may outlive SIGTERM before
	// SIGKILL. Zero disables escalation.
	KillGrace time.Duration `yaml:"kill_grace"`
}

// ResourcesConfig defines host utilization sampling.
type ResourcesConfig struct {
	CPUWindow time.Duration `yaml:"cpu_window"`
}

// StateConfig defines where the agent keeps its lock file.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// GatewayConfig defines the fan-out gateway run by nodectl.
type GatewayConfig struct {
	Listen   string `yaml:"listen"`
	Registry string `yaml:"registry"`
	// DefaultPort is used for nodes registered without a port.
	DefaultPort int `yaml:"default_port"`
}

// Defaults returns a config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "nodeagent",
			LogLevel:  "info",
			LogFormat: "json",
		},
		API: APIConfig{
			Listen:          "0.0.0.0:30081",
			ShutdownTimeout: 10 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Root:      "./workspace",
			Keep:      []string{"main.py", "requirements.txt", "data"},
			MaxUpload: 1 << 30,
		},
		Logs: LogsConfig{
			Capacity: 1000,
		},
		Jobs: JobsConfig{
			Shell:     "/bin/sh",
			KillGrace: 0,
		},
		Resources: ResourcesConfig{
			CPUWindow: time.Second,
		},
		State: StateConfig{
			Dir: "./data",
		},
		Gateway: GatewayConfig{
			Listen:      "0.0.0.0:8500",
			Registry:    "./data/nodes.db",
			DefaultPort: 30081,
		},
	}
}
