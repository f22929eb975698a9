package vfs

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/spf13/afero"

	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/observability/log"
	"github.com/zeusync/jackal/pkg/generic"
)

var readBuffers = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// MountInfo is a snapshot of one mount, in search order when listed.
type MountInfo struct {
	Name       string `json:"name" yaml:"name"`
	MountPoint string `json:"mount_point,omitempty" yaml:"mount_point,omitempty"`
	Priority   int    `json:"priority" yaml:"priority"`
	Kind       string `json:"kind" yaml:"kind"`
	Source     string `json:"source" yaml:"source"`
}

type mount struct {
	name       string
	mountPoint string
	priority   int
	seq        uint64
	root       Root
}

type MountOption func(*mount)

// WithName overrides the mount name, which defaults to Root.Name().
func WithName(name string) MountOption {
	return func(m *mount) {
		m.name = name
	}
}

// WithMountPoint makes the mount answer "~point/..." paths only.
func WithMountPoint(point string) MountOption {
	return func(m *mount) {
		m.mountPoint = point
	}
}

// FileSystem resolves logical asset paths against an ordered set of mounted
// roots. Higher priority mounts are searched first; among equal priorities
// the most recently mounted wins, so a patch mounted later overrides the base
// content it shares a priority with.
//
// Plain logical paths ("tex/a.png") search the mounts without a mount point.
// Paths of the form "~point/tex/a.png" search only mounts registered under
// that mount point.
type FileSystem struct {
	mu     sync.RWMutex
	mounts []*mount
	seq    uint64
	log    log.Log
	events bus.Publisher
}

type Option func(*FileSystem)

func WithLogger(l log.Log) Option {
	return func(fs *FileSystem) {
		fs.log = log.OrNop(l)
	}
}

func WithEvents(p bus.Publisher) Option {
	return func(fs *FileSystem) {
		fs.events = p
	}
}

func New(opts ...Option) *FileSystem {
	fs := &FileSystem{log: log.NewNop()}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Mount adds root to the search set at the given priority.
func (fs *FileSystem) Mount(root Root, priority int, opts ...MountOption) error {
	if root == nil || root.Fs() == nil {
		return ErrInvalidRoot
	}
	m := &mount{name: root.Name(), priority: priority, root: root}
	for _, opt := range opts {
		opt(m)
	}

	fs.mu.Lock()
	for _, existing := range fs.mounts {
		if existing.name == m.name {
			fs.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateMount, m.name)
		}
	}
	fs.seq++
	m.seq = fs.seq
	fs.mounts = append(fs.mounts, m)
	slices.SortStableFunc(fs.mounts, searchOrder)
	fs.mu.Unlock()

	fs.log.Info("mounted",
		log.String("mount", m.name),
		log.String("kind", root.Kind().String()),
		log.String("source", root.Source()),
		log.Int("priority", priority),
		log.String("mount_point", m.mountPoint),
	)
	fs.emit(bus.FileSystemMounted, m)
	return nil
}

// MountDir mounts a host directory.
func (fs *FileSystem) MountDir(dir string, priority int, opts ...MountOption) error {
	root, err := NewDirRoot(dir)
	if err != nil {
		return err
	}
	return fs.Mount(root, priority, opts...)
}

// MountArchive mounts a zip archive. The archive is closed on dismount.
func (fs *FileSystem) MountArchive(archive string, priority int, opts ...MountOption) error {
	root, err := NewArchiveRoot(archive)
	if err != nil {
		return err
	}
	if err := fs.Mount(root, priority, opts...); err != nil {
		_ = root.Close()
		return err
	}
	return nil
}

// Dismount removes the named mount and closes its root.
func (fs *FileSystem) Dismount(name string) error {
	fs.mu.Lock()
	idx := slices.IndexFunc(fs.mounts, func(m *mount) bool { return m.name == name })
	if idx < 0 {
		fs.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMountNotFound, name)
	}
	m := fs.mounts[idx]
	fs.mounts = slices.Delete(fs.mounts, idx, idx+1)
	fs.mu.Unlock()

	fs.log.Info("dismounted", log.String("mount", name))
	fs.emit(bus.FileSystemDismounted, m)
	return m.root.Close()
}

// DismountAll removes every mount, closing all roots.
func (fs *FileSystem) DismountAll() error {
	fs.mu.Lock()
	mounts := fs.mounts
	fs.mounts = nil
	fs.mu.Unlock()

	var errs error
	for _, m := range mounts {
		fs.emit(bus.FileSystemDismounted, m)
		errs = errors.Join(errs, m.root.Close())
	}
	return errs
}

// Mounts lists the mounts in search order.
func (fs *FileSystem) Mounts() []MountInfo {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]MountInfo, 0, len(fs.mounts))
	for _, m := range fs.mounts {
		out = append(out, m.info())
	}
	return out
}

// Resolve maps a logical path to the first mount holding a regular file at
// it. A path held by no mount yields ErrNotFound; a malformed one yields
// ErrInvalidPath.
func (fs *FileSystem) Resolve(logical string) (Location, error) {
	p, err := parse(logical)
	if err != nil {
		return Location{}, err
	}

	fs.mu.RLock()
	candidates := make([]*mount, 0, len(fs.mounts))
	for _, m := range fs.mounts {
		if m.mountPoint == p.mountPoint {
			candidates = append(candidates, m)
		}
	}
	fs.mu.RUnlock()

	for _, m := range candidates {
		info, err := m.root.Fs().Stat(p.rel)
		if err != nil {
			if !os.IsNotExist(err) {
				fs.log.Warn("probe failed",
					log.String("mount", m.name),
					log.String("path", p.rel),
					log.Error(err),
				)
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		return newLocation(m, p), nil
	}
	return Location{}, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// Exists reports whether Resolve would succeed.
func (fs *FileSystem) Exists(logical string) bool {
	_, err := fs.Resolve(logical)
	return err == nil
}

// Open resolves and opens a logical path.
func (fs *FileSystem) Open(logical string) (afero.File, Location, error) {
	loc, err := fs.Resolve(logical)
	if err != nil {
		return nil, Location{}, err
	}
	f, err := loc.Open()
	if err != nil {
		return nil, loc, err
	}
	return f, loc, nil
}

// ReadFile resolves a logical path and reads it whole.
func (fs *FileSystem) ReadFile(logical string) ([]byte, Location, error) {
	loc, err := fs.Resolve(logical)
	if err != nil {
		return nil, Location{}, err
	}
	data, err := loc.ReadAll()
	return data, loc, err
}

func (fs *FileSystem) emit(typ string, m *mount) {
	info := m.info()
	data := map[string]any{
		"mount":       info.Name,
		"kind":        info.Kind,
		"source":      info.Source,
		"priority":    info.Priority,
		"mount_point": info.MountPoint,
	}
	if err := bus.Emit(fs.events, typ, "vfs", data); err != nil {
		fs.log.Warn("event handler failed", log.String("event", typ), log.Error(err))
	}
}

func (m *mount) info() MountInfo {
	return MountInfo{
		Name:       m.name,
		MountPoint: m.mountPoint,
		Priority:   m.priority,
		Kind:       m.root.Kind().String(),
		Source:     m.root.Source(),
	}
}

// searchOrder sorts by priority, highest first, then by mount sequence,
// latest first.
func searchOrder(a, b *mount) int {
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}
	return cmp.Compare(b.seq, a.seq)
}

// Location is a resolved logical path: the mount that holds it and the
// physical place the bytes live.
type Location struct {
	Mount string
	// Logical is the canonical logical path that resolved here.
	Logical string
	// Path is the slash-separated path inside the mount.
	Path string
	// Physical identifies the backing store uniquely: a host path for
	// directory mounts, "archive!/path" for zip files and
	// "kind://mount#seq/path" for roots without a host file.
	Physical string
	Kind     RootKind

	fs afero.Fs
}

func newLocation(m *mount, p logicalPath) Location {
	loc := Location{
		Mount:   m.name,
		Logical: p.String(),
		Path:    p.rel,
		Kind:    m.root.Kind(),
		fs:      m.root.Fs(),
	}
	switch {
	case !hostBacked(m.root):
		// Labels of in-memory and reader roots are not unique, the mount is.
		loc.Physical = fmt.Sprintf("%s://%s#%d/%s", loc.Kind, m.name, m.seq, p.rel)
	case loc.Kind == DirRoot:
		loc.Physical = filepath.Join(m.root.Source(), filepath.FromSlash(p.rel))
	default:
		loc.Physical = m.root.Source() + "!/" + p.rel
	}
	return loc
}

func (l Location) String() string { return l.Physical }

// IsZero reports whether l is the zero Location.
func (l Location) IsZero() bool { return l.fs == nil }

// HostPath returns the host filesystem path for directory mounts.
func (l Location) HostPath() (string, bool) {
	if l.Kind != DirRoot {
		return "", false
	}
	return l.Physical, true
}

func (l Location) Open() (afero.File, error) {
	if l.fs == nil {
		return nil, fmt.Errorf("%w: unresolved location", ErrNotFound)
	}
	return l.fs.Open(l.Path)
}

func (l Location) Stat() (os.FileInfo, error) {
	if l.fs == nil {
		return nil, fmt.Errorf("%w: unresolved location", ErrNotFound)
	}
	return l.fs.Stat(l.Path)
}

func (l Location) ReadAll() ([]byte, error) {
	f, err := l.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := readBuffers.Get()
	defer readBuffers.Put(buf)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}
