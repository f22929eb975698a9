package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/jackal/internal/core/vfs"
)

const (
	textureKind Kind = "texture"
	shaderKind  Kind = "shader"
)

var errBroken = errors.New("broken asset")

type testEnv struct {
	mem afero.Fs
	fs  *vfs.FileSystem
	m   *Manager

	loads    atomic.Int32
	unloaded sync.Map
	gate     chan struct{}
	fail     atomic.Bool
}

// newTestEnv mounts an in-memory root holding files and registers
// textureKind with a counting loader.
func newTestEnv(t *testing.T, files map[string]string, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{mem: afero.NewMemMapFs()}
	for p, content := range files {
		require.NoError(t, afero.WriteFile(env.mem, p, []byte(content), 0o644))
	}
	env.fs = vfs.New()
	require.NoError(t, env.fs.Mount(vfs.NewFsRoot("base", env.mem), 0))
	env.m = NewManager(env.fs, opts...)
	require.NoError(t, env.m.RegisterKind(textureKind, env.load, WithUnloader(env.unload)))
	t.Cleanup(func() { _ = env.m.Close() })
	return env
}

func (e *testEnv) load(ctx context.Context, loc vfs.Location) (any, error) {
	e.loads.Add(1)
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fail.Load() {
		return nil, errBroken
	}
	data, err := loc.ReadAll()
	if err != nil {
		return nil, err
	}
	return &texture{name: loc.Logical, data: string(data)}, nil
}

func (e *testEnv) unload(payload any) error {
	e.unloaded.Store(payload, true)
	return nil
}

func (e *testEnv) wasUnloaded(p any) bool {
	_, ok := e.unloaded.Load(p)
	return ok
}

func (e *testEnv) key(t *testing.T, logical string, kind Kind) Key {
	t.Helper()
	loc, err := e.fs.Resolve(logical)
	require.NoError(t, err)
	return Key{Physical: loc.Physical, Kind: kind}
}

type texture struct {
	name string
	data string
}

type closer struct {
	closed atomic.Bool
}

func (c *closer) Close() error {
	c.closed.Store(true)
	return nil
}
