package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckLocalFilesystem_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nodes.db")
	err := checkLocalFilesystem(path, func(string) (string, error) { return "apfs", nil })
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystem_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nodes.db")
	err := checkLocalFilesystem(path, func(string) (string, error) { return "smbfs", nil })
	if !errors.Is(err, ErrNetworkFilesystem) {
		t.Fatalf("expected ErrNetworkFilesystem, got: %v", err)
	}
	if !strings.Contains(err.Error(), "smbfs") {
		t.Fatalf("expected error to name the filesystem, got %q", err)
	}
}

func TestCheckLocalFilesystem_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "nested", "dir", "agent.lock")

	var inspected string
	err := checkLocalFilesystem(path, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
	if inspected != root {
		t.Fatalf("expected detector to inspect %q, got %q", root, inspected)
	}
}

func TestCheckLocalFilesystem_UnsupportedPlatformPasses(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystem(t.TempDir(), func(string) (string, error) { return "", errUnsupported })
	if err != nil {
		t.Fatalf("expected unsupported detection to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystem_DetectorError(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystem(t.TempDir(), func(string) (string, error) { return "", errors.New("statfs failed") })
	if err == nil {
		t.Fatal("expected detector failure to surface")
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fs   string
		want bool
	}{
		{fs: "nfs", want: true},
		{fs: " CIFS ", want: true},
		{fs: "ext4", want: false},
		{fs: "0x6969", want: false},
	}
	for _, tc := range cases {
		if got := isNetworkFilesystem(tc.fs); got != tc.want {
			t.Errorf("isNetworkFilesystem(%q) = %v, want %v", tc.fs, got, tc.want)
		}
	}
}

func TestCheckLocalFilesystem_Host(t *testing.T) {
	t.Parallel()

	if err := CheckLocalFilesystem(t.TempDir()); err != nil && !errors.Is(err, ErrNetworkFilesystem) {
		t.Fatalf("CheckLocalFilesystem: %v", err)
	}
}
