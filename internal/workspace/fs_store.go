package workspace

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
)

// sniffLen is how much of a file is read to guess its content type.
const sniffLen = 512

// fsStore manages the workspace directory on local disk.
type fsStore struct {
	root string
	keep map[string]struct{}
}

var _ Store = (*fsStore)(nil)

// NewFSStore creates the workspace root if needed and returns a Store over
// it. keep names the top-level entries Clear must preserve; nil means
// DefaultKeep.
func NewFSStore(root string, keep []string) (*fsStore, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace root is empty")
	}

	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	// Compare resolved paths later, so resolve the root once up front.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	if keep == nil {
		keep = DefaultKeep
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		name = strings.TrimSpace(name)
		if name != "" {
			keepSet[name] = struct{}{}
		}
	}

	return &fsStore{root: resolved, keep: keepSet}, nil
}

func (s *fsStore) Root() string { return s.root }

// Clear removes every top-level entry not on the keep list.
func (s *fsStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: create workspace root: %v", ErrIO, err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("%w: read workspace root: %v", ErrIO, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := s.keep[entry.Name()]; ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return fmt.Errorf("%w: remove %q: %v", ErrIO, entry.Name(), err)
		}
	}
	return nil
}

// DeployArchive clears the workspace, spools r to a temporary zip under the
// root, extracts it in place and removes the temporary file.
func (s *fsStore) DeployArchive(ctx context.Context, r io.Reader) (Deployment, error) {
	if err := s.Clear(ctx); err != nil {
		return Deployment{}, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*.zip")
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: create temporary archive: %v", ErrIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: write temporary archive: %w", ErrIO, err)
	}

	zr, err := zip.OpenReader(tmpPath)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	defer zr.Close()

	files, err := s.extract(ctx, &zr.Reader)
	if err != nil {
		return Deployment{}, err
	}

	return Deployment{
		Files:  files,
		Bytes:  size,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func (s *fsStore) extract(ctx context.Context, zr *zip.Reader) (int, error) {
	files := 0
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		dst, err := s.memberPath(f.Name)
		if err != nil {
			return files, err
		}
		if dst == s.root {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return files, fmt.Errorf("%w: create %q: %v", ErrIO, f.Name, err)
			}
			continue
		}

		if err := writeMember(f, dst); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

// memberPath maps an archive entry name to a destination under the root,
// rejecting names that would land outside it.
func (s *fsStore) memberPath(name string) (string, error) {
	clean := filepath.FromSlash(name)
	if clean == "" || filepath.IsAbs(clean) || strings.HasPrefix(name, "/") || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: illegal entry name %q", ErrArchive, name)
	}
	dst := filepath.Join(s.root, clean)
	if !within(s.root, dst) {
		return "", fmt.Errorf("%w: entry %q escapes workspace", ErrArchive, name)
	}
	return dst, nil
}

func writeMember(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: create parent of %q: %v", ErrIO, f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %q: %v", ErrArchive, f.Name, err)
	}
	defer src.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", ErrIO, f.Name, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) {
			return fmt.Errorf("%w: entry %q: %v", ErrArchive, f.Name, err)
		}
		return fmt.Errorf("%w: write %q: %v", ErrIO, f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %q: %v", ErrIO, f.Name, err)
	}
	return nil
}

// List resolves rel under the root and describes what it points at.
func (s *fsStore) List(ctx context.Context, rel string) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}

	path, err := s.resolve(rel)
	if err != nil {
		return Listing{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Listing{}, fmt.Errorf("%w: %q", ErrNotFound, rel)
		}
		return Listing{}, fmt.Errorf("%w: stat %q: %v", ErrIO, rel, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return Listing{}, fmt.Errorf("%w: read %q: %v", ErrIO, rel, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		slices.Sort(names)
		return Listing{Name: info.Name(), Files: names, ModTime: info.ModTime()}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: open %q: %v", ErrIO, rel, err)
	}
	contentType, err := detectContentType(f)
	if err != nil {
		f.Close()
		return Listing{}, fmt.Errorf("%w: read %q: %v", ErrIO, rel, err)
	}

	listing, err := NewFileListing(f, contentType)
	if err != nil {
		f.Close()
		return Listing{}, fmt.Errorf("%w: stat %q: %v", ErrIO, rel, err)
	}
	return listing, nil
}

// resolve canonicalizes rel against the root, following symlinks, and
// rejects anything that ends up outside it.
func (s *fsStore) resolve(rel string) (string, error) {
	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
		return "", fmt.Errorf("%w: %q", ErrNotFound, rel)
	}

	joined := filepath.Join(s.root, native)
	if !within(s.root, joined) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, rel)
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, rel)
		}
		return "", fmt.Errorf("%w: resolve %q: %v", ErrIO, rel, err)
	}
	if !within(s.root, resolved) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, rel)
	}
	return resolved, nil
}

// within reports whether path is root or below it. Both must be clean.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func detectContentType(f *os.File) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(f.Name())); ct != "" {
		return ct, nil
	}

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if n == 0 {
		return "application/octet-stream", nil
	}
	return http.DetectContentType(buf[:n]), nil
}
