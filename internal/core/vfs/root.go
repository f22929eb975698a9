package vfs

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/afero/zipfs"
)

type RootKind uint8

const (
	DirRoot RootKind = iota
	ArchiveRoot
	MemoryRoot
)

func (k RootKind) String() string {
	switch k {
	case DirRoot:
		return "dir"
	case ArchiveRoot:
		return "zip"
	case MemoryRoot:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseRootKind maps a config name onto a RootKind.
func ParseRootKind(s string) (RootKind, error) {
	switch strings.ToLower(s) {
	case "", "dir", "directory":
		return DirRoot, nil
	case "zip", "archive":
		return ArchiveRoot, nil
	case "memory", "mem":
		return MemoryRoot, nil
	default:
		return 0, fmt.Errorf("%w: unknown root type %q", ErrInvalidRoot, s)
	}
}

// Root is a physical content root. Directories and archives are both exposed
// as a read-only afero.Fs so resolution probes them the same way.
type Root interface {
	// Name is the default mount name.
	Name() string
	Kind() RootKind
	// Source is the physical origin: a directory, an archive file or a label.
	Source() string
	Fs() afero.Fs
	Close() error
}

type fsRoot struct {
	name   string
	kind   RootKind
	source string
	fs     afero.Fs
	closer func() error
	// host is set when source names a file or directory on the host, which
	// then identifies the bytes on its own.
	host bool
}

func (r *fsRoot) Name() string   { return r.name }
func (r *fsRoot) Kind() RootKind { return r.kind }
func (r *fsRoot) Source() string { return r.source }
func (r *fsRoot) Fs() afero.Fs   { return r.fs }

func (r *fsRoot) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// NewDirRoot opens a directory on the host filesystem as a read-only root.
func NewDirRoot(dir string) (Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRoot, dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, abs)
	}
	return &fsRoot{
		name:   filepath.Base(abs),
		kind:   DirRoot,
		source: abs,
		fs:     afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), abs)),
		host:   true,
	}, nil
}

// NewArchiveRoot opens a zip archive as a root. The archive stays open until
// the root is closed.
func NewArchiveRoot(archive string) (Root, error) {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRoot, archive, err)
	}
	rc, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	return &fsRoot{
		name:   strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		kind:   ArchiveRoot,
		source: abs,
		fs:     zipfs.New(&rc.Reader),
		closer: rc.Close,
		host:   true,
	}, nil
}

// NewZipReaderRoot exposes an already opened zip reader, e.g. an archive
// embedded in the binary.
func NewZipReaderRoot(name string, r *zip.Reader) Root {
	return &fsRoot{
		name:   name,
		kind:   ArchiveRoot,
		source: name,
		fs:     zipfs.New(r),
	}
}

// NewFsRoot wraps an arbitrary afero filesystem, typically afero.NewMemMapFs.
func NewFsRoot(name string, fs afero.Fs) Root {
	return &fsRoot{
		name:   name,
		kind:   MemoryRoot,
		source: name,
		fs:     afero.NewReadOnlyFs(fs),
	}
}

func hostBacked(r Root) bool {
	fr, ok := r.(*fsRoot)
	return ok && fr.host
}
