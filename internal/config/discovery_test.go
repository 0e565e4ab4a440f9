package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSearchPathsOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "/custom/agent.yaml")

	got := SearchPaths()
	want := []string{
		"/custom/agent.yaml",
		filepath.Join(home, ".config", "nodeagent", "config.yaml"),
		"/etc/nodeagent/config.yaml",
		"./config.yaml",
	}
	if len(got) != len(want) {
		t.Fatalf("SearchPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SearchPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscover(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "")
	t.Chdir(t.TempDir())

	if _, err := os.Stat("/etc/nodeagent/config.yaml"); err == nil {
		t.Skip("host has a system-wide nodeagent config")
	}

	if p, ok := Discover(); ok {
		t.Fatalf("Discover() = %q, want nothing", p)
	}

	if err := os.WriteFile("config.yaml", []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	if p, ok := Discover(); !ok || p != "./config.yaml" {
		t.Fatalf("Discover() = %q, %v, want ./config.yaml", p, ok)
	}

	userDir := filepath.Join(home, ".config", "nodeagent")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	userPath := writeConfig(t, userDir, "")
	if p, ok := Discover(); !ok || p != userPath {
		t.Fatalf("Discover() = %q, %v, want %q", p, ok, userPath)
	}
}
