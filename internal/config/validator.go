package config

import (
	"fmt"
	"net"
	"strings"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"json": true, "text": true}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if err := validateUnresolved(cfg); err != nil {
		return err
	}

	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if !validLogFormats[cfg.Service.LogFormat] {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if err := validateListen("api.listen", cfg.API.Listen); err != nil {
		return err
	}
	if cfg.API.ShutdownTimeout < 0 {
		return fmt.Errorf("api.shutdown_timeout must not be negative")
	}

	if strings.TrimSpace(cfg.Workspace.Root) == "" {
		return fmt.Errorf("workspace.root is required")
	}
	for i, name := range cfg.Workspace.Keep {
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("workspace.keep[%d]: %q must be a plain top-level name", i, name)
		}
	}
	if cfg.Workspace.MaxUpload < 0 {
		return fmt.Errorf("workspace.max_upload must not be negative")
	}

	if cfg.Logs.Capacity < 1 {
		return fmt.Errorf("logs.capacity must be positive")
	}
	if strings.TrimSpace(cfg.Jobs.Shell) == "" {
		return fmt.Errorf("jobs.shell is required")
	}
	if cfg.Jobs.KillGrace < 0 {
		return fmt.Errorf("jobs.kill_grace must not be negative")
	}
	if cfg.Resources.CPUWindow <= 0 {
		return fmt.Errorf("resources.cpu_window must be positive")
	}
	if cfg.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}

	if err := validateListen("gateway.listen", cfg.Gateway.Listen); err != nil {
		return err
	}
	if cfg.Gateway.Registry == "" {
		return fmt.Errorf("gateway.registry is required")
	}
	if cfg.Gateway.DefaultPort < 1 || cfg.Gateway.DefaultPort > 65535 {
		return fmt.Errorf("gateway.default_port must be between 1 and 65535 (got %d)", cfg.Gateway.DefaultPort)
	}

	return nil
}

func validateListen(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: invalid address %q: %w", field, addr, err)
	}
	return nil
}

// validateUnresolved rejects ${VAR} placeholders whose variable was not set.
func validateUnresolved(cfg *Config) error {
	fields := []struct{ name, value string }{
		{"api.listen", cfg.API.Listen},
		{"workspace.root", cfg.Workspace.Root},
		{"jobs.shell", cfg.Jobs.Shell},
		{"state.dir", cfg.State.Dir},
		{"gateway.listen", cfg.Gateway.Listen},
		{"gateway.registry", cfg.Gateway.Registry},
	}
	for _, f := range fields {
		if matches := envVarPattern.FindStringSubmatch(f.value); len(matches) > 1 {
			return fmt.Errorf("%s: environment variable ${%s} is not set", f.name, matches[1])
		}
	}
	return nil
}
