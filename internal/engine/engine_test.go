package engine

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/jackal/internal/config"
	"github.com/zeusync/jackal/internal/core/ecs"
	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/resource"
	"github.com/zeusync/jackal/internal/core/vfs"
)

type sprite struct {
	ecs.Base
	texture *resource.Handle
}

type spin struct {
	ecs.Base
	angle float64
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(content, "tex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(content, "tex", "hero.png"), []byte("hero"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(content, "tex", "missing.png"), []byte("checker"), 0o644))

	archive := filepath.Join(dir, "patch.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("tex/hero.png")
	require.NoError(t, err)
	_, err = w.Write([]byte("hero-v2"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	cfg := config.Default()
	cfg.TickRate = 500
	cfg.Mounts = []config.Mount{
		{Type: "dir", Path: content, Priority: 0},
		{Type: "zip", Path: archive, Priority: 10},
	}
	cfg.Resources.Defaults = map[string]string{"texture": "tex/missing.png"}
	return cfg
}

func TestEngineWiresSubsystems(t *testing.T) {
	b := bus.New()
	var spawned int
	_, err := b.Subscribe(bus.EntitySpawned, func(bus.Event) error {
		spawned++
		return nil
	})
	require.NoError(t, err)

	e, err := New(testConfig(t), nil, b)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	mounts := e.FileSystem().Mounts()
	require.Len(t, mounts, 2)
	require.Equal(t, "patch", mounts[0].Name)
	require.Equal(t, "content", mounts[1].Name)

	require.NoError(t, e.RegisterKind("texture", resource.TextLoader))
	ctx := context.Background()

	h, err := e.Resources().Acquire(ctx, "tex/hero.png", "texture")
	require.NoError(t, err)
	text, err := resource.As[string](h)
	require.NoError(t, err)
	require.Equal(t, "hero-v2", text, "the archive outranks the directory")

	fallback, err := e.Resources().AcquireOrDefault(ctx, "tex/villain.png", "texture")
	require.NoError(t, err)
	text, err = resource.As[string](fallback)
	require.NoError(t, err)
	require.Equal(t, "checker", text)

	spriteType := ecs.MustRegister[*sprite](e.Registry())
	spinType := ecs.MustRegister[*spin](e.Registry())

	hero := e.World().Spawn("hero")
	require.NoError(t, hero.Attach(&sprite{texture: h}))
	require.NoError(t, hero.Attach(&spin{}))
	prop := e.World().Spawn("prop")
	require.NoError(t, prop.Attach(&sprite{texture: fallback}))

	var seen []string
	require.NoError(t, e.World().RegisterSystem(ecs.NewSystem("spin", func(tc *ecs.TickContext, obj *ecs.GameObject) error {
		s, ok := ecs.Get[*spin](obj)
		if !ok {
			return ecs.ErrComponentNotFound
		}
		s.angle += tc.Delta.Seconds()
		seen = append(seen, obj.Name())
		return nil
	}, spriteType, spinType)))

	require.NoError(t, e.Step(ctx, 100*time.Millisecond))
	require.Equal(t, []string{"hero"}, seen)
	require.Equal(t, 2, spawned)
	require.True(t, e.Registry().Frozen())

	require.NoError(t, e.Resources().Release(h))
	require.NoError(t, e.Resources().Release(fallback))
	require.Zero(t, e.Resources().Stats().Entries)
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e, err := New(testConfig(t), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	require.Positive(t, e.World().Ticks())
}

func TestEngineRejectsBadMount(t *testing.T) {
	cfg := config.Default()
	cfg.Mounts = []config.Mount{{Type: "dir", Path: filepath.Join(t.TempDir(), "nope")}}
	_, err := New(cfg, nil, nil)
	require.ErrorIs(t, err, vfs.ErrInvalidRoot)

	cfg.Mounts = nil
	cfg.TickRate = -1
	_, err = New(cfg, nil, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestEngineCloseUnloadsResources(t *testing.T) {
	e, err := New(testConfig(t), nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.RegisterKind("texture", resource.BytesLoader))

	h, err := e.Resources().Acquire(context.Background(), "tex/hero.png", "texture")
	require.NoError(t, err)
	e.World().Spawn("hero")
	require.NoError(t, e.World().Flush())

	require.NoError(t, e.Close())
	require.Equal(t, resource.Unloaded, h.State())
	require.Zero(t, e.World().Len())
	require.Empty(t, e.FileSystem().Mounts())
}
