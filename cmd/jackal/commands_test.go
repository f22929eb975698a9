package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/jackal/internal/core/vfs"
)

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range map[string]string{
		"base/tex/hero.png":   "base",
		"mod/tex/hero.png":    "mod",
		"hd/wall.png":         "hd",
		"jackal.yaml":         "log_level: silent\nmounts:\n  - path: base\n  - path: mod\n    priority: 5\n  - path: hd\n    mount_point: textures\n",
		"base/shaders/a.vert": "void main() {}",
	} {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return filepath.Join(dir, "jackal.yaml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	cfg := writeProject(t)
	dir := filepath.Dir(cfg)

	out, err := execute(t, "resolve", "--config", cfg, "tex/hero.png", "~textures/wall.png", "shaders/a.vert")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"tex/hero.png", "mod", filepath.Join(dir, "mod", "tex", "hero.png")}, strings.Fields(lines[0]))
	require.Equal(t, []string{"~textures/wall.png", "hd", filepath.Join(dir, "hd", "wall.png")}, strings.Fields(lines[1]))
	require.Equal(t, "base", strings.Fields(lines[2])[1])

	_, err = execute(t, "resolve", "-c", cfg, "tex/nope.png")
	require.ErrorIs(t, err, vfs.ErrNotFound)

	_, err = execute(t, "resolve", "-c", cfg, "../jackal.yaml")
	require.ErrorIs(t, err, vfs.ErrInvalidPath)
}

func TestMountsCommand(t *testing.T) {
	cfg := writeProject(t)

	out, err := execute(t, "mounts", "-c", cfg, "--json")
	require.NoError(t, err)
	var mounts []vfs.MountInfo
	require.NoError(t, json.Unmarshal([]byte(out), &mounts))
	names := make([]string, 0, len(mounts))
	for _, m := range mounts {
		names = append(names, m.Name)
	}
	require.Equal(t, []string{"mod", "hd", "base"}, names)

	out, err = execute(t, "mounts", "-c", cfg)
	require.NoError(t, err)
	require.Contains(t, out, "~textures")
	require.True(t, strings.HasPrefix(out, "NAME"))
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "mounts", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
