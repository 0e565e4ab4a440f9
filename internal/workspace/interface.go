package workspace

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

var (
	// ErrNotFound is returned for paths that do not exist or resolve outside
	// the workspace root.
	ErrNotFound = errors.New("path not found")

	// ErrArchive is returned when an uploaded payload is not a usable zip.
	ErrArchive = errors.New("invalid archive")

	// ErrIO wraps filesystem failures while mutating the workspace.
	ErrIO = errors.New("workspace io failure")
)

// DefaultKeep lists the entries a clear never removes.
var DefaultKeep = []string{"main.py", "requirements.txt", "data"}

// Deployment summarizes an extracted archive.
type Deployment struct {
	Files  int    `json:"files"`
	Bytes  int64  `json:"bytes"`
	Digest string `json:"digest"`
}

// Listing is the result of List. A directory listing carries Files; a file
// listing carries an open body that the caller must Close.
type Listing struct {
	Name        string
	Files       []string
	ContentType string
	Size        int64
	ModTime     time.Time

	body *os.File
}

// NewFileListing describes an open file. The listing takes ownership of f.
func NewFileListing(f *os.File, contentType string) (Listing, error) {
	info, err := f.Stat()
	if err != nil {
		return Listing{}, err
	}
	return Listing{
		Name:        info.Name(),
		ContentType: contentType,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		body:        f,
	}, nil
}

// IsDir reports whether the listing describes a directory.
func (l Listing) IsDir() bool { return l.body == nil }

// Body returns the file content. It is nil for directories.
func (l Listing) Body() io.ReadSeeker {
	if l.body == nil {
		return nil
	}
	return l.body
}

// Bytes reads the whole file content.
func (l Listing) Bytes() ([]byte, error) {
	if l.body == nil {
		return nil, errors.New("listing is a directory")
	}
	if _, err := l.body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(l.body)
}

// Close releases the file handle, if any.
func (l Listing) Close() error {
	if l.body == nil {
		return nil
	}
	return l.body.Close()
}

// Store manages the single workspace directory jobs run in and uploads land
// in.
//
// Operations are not isolated from each other: a List running during a Clear
// or DeployArchive may observe a partially cleared or extracted tree.
type Store interface {
	// Root returns the absolute workspace directory.
	Root() string

	// Clear removes every top-level entry except the keep list.
	Clear(ctx context.Context) error

	// DeployArchive clears the workspace and extracts the zip read from r
	// into it. A failed extraction is not rolled back.
	DeployArchive(ctx context.Context, r io.Reader) (Deployment, error)

	// List returns a file's content or a directory's sorted child names for
	// a path relative to the root.
	List(ctx context.Context, rel string) (Listing, error)
}
