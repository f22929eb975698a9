package vfs

import (
	"archive/zip"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/jackal/internal/core/events/bus"
)

func memRoot(t *testing.T, name string, files map[string]string) Root {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}
	return NewFsRoot(name, fs)
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestResolvePriority(t *testing.T) {
	t.Run("Higher priority wins", func(t *testing.T) {
		fs := New()
		require.NoError(t, fs.Mount(memRoot(t, "A", map[string]string{"tex/a.png": "A"}), 1))
		require.NoError(t, fs.Mount(memRoot(t, "B", map[string]string{"tex/a.png": "B"}), 0))

		loc, err := fs.Resolve("tex/a.png")
		require.NoError(t, err)
		require.Equal(t, "A", loc.Mount)

		data, err := loc.ReadAll()
		require.NoError(t, err)
		require.Equal(t, "A", string(data))
	})

	t.Run("Mount order does not beat priority", func(t *testing.T) {
		fs := New()
		require.NoError(t, fs.Mount(memRoot(t, "B", map[string]string{"tex/a.png": "B"}), 0))
		require.NoError(t, fs.Mount(memRoot(t, "A", map[string]string{"tex/a.png": "A"}), 1))

		loc, err := fs.Resolve("tex/a.png")
		require.NoError(t, err)
		require.Equal(t, "A", loc.Mount)
	})

	t.Run("Ties go to the most recent mount", func(t *testing.T) {
		fs := New()
		require.NoError(t, fs.Mount(memRoot(t, "base", map[string]string{"tex/a.png": "base"}), 0))
		require.NoError(t, fs.Mount(memRoot(t, "patch", map[string]string{"tex/a.png": "patch"}), 0))

		loc, err := fs.Resolve("tex/a.png")
		require.NoError(t, err)
		require.Equal(t, "patch", loc.Mount)

		names := []string{}
		for _, m := range fs.Mounts() {
			names = append(names, m.Name)
		}
		require.Equal(t, []string{"patch", "base"}, names)
	})

	t.Run("Falls through to lower priority", func(t *testing.T) {
		fs := New()
		require.NoError(t, fs.Mount(memRoot(t, "mod", map[string]string{"tex/b.png": "mod"}), 10))
		require.NoError(t, fs.Mount(memRoot(t, "base", map[string]string{"tex/a.png": "base"}), 0))

		loc, err := fs.Resolve("tex/a.png")
		require.NoError(t, err)
		require.Equal(t, "base", loc.Mount)
	})

	t.Run("Deterministic", func(t *testing.T) {
		fs := New()
		require.NoError(t, fs.Mount(memRoot(t, "A", map[string]string{"a": "1"}), 0))
		require.NoError(t, fs.Mount(memRoot(t, "B", map[string]string{"a": "2"}), 0))
		first, err := fs.Resolve("a")
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			again, err := fs.Resolve("./a")
			require.NoError(t, err)
			require.Equal(t, first, again)
		}
	})
}

func TestResolveNotFound(t *testing.T) {
	fs := New()
	require.NoError(t, fs.Mount(memRoot(t, "A", map[string]string{"tex/a.png": "A"}), 0))

	_, err := fs.Resolve("tex/missing.png")
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrInvalidPath)
	require.False(t, fs.Exists("tex/missing.png"))

	_, err = fs.Resolve("tex")
	require.ErrorIs(t, err, ErrNotFound, "directories are not resources")

	_, err = New().Resolve("tex/a.png")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveInvalidPath(t *testing.T) {
	fs := New()
	require.NoError(t, fs.Mount(memRoot(t, "A", map[string]string{"a.png": "A"}), 0))

	cases := []string{
		"",
		"..",
		"../a.png",
		"../../etc/passwd",
		"tex/../../a.png",
		`..\a.png`,
		"/a.png",
		"C:/a.png",
		"tex/..",
		".",
		"~/a.png",
		"~textures",
		"~../a.png",
		"~tex/../../a.png",
		"a\x00.png",
	}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := fs.Resolve(in)
			require.ErrorIs(t, err, ErrInvalidPath)
			require.False(t, fs.Exists(in))
		})
	}
}

func TestClean(t *testing.T) {
	cases := map[string]string{
		"a.png":             "a.png",
		"./tex//a.png":      "tex/a.png",
		`tex\sub\a.png`:     "tex/sub/a.png",
		"tex/sub/../a.png":  "tex/a.png",
		"~textures/./a.png": "~textures/a.png",
	}
	for in, want := range cases {
		got, err := Clean(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestMountPoints(t *testing.T) {
	fs := New()
	require.NoError(t, fs.Mount(memRoot(t, "general", map[string]string{"a.png": "general"}), 0))
	require.NoError(t, fs.Mount(memRoot(t, "textures", map[string]string{"a.png": "textures"}), 0, WithMountPoint("textures")))
	require.NoError(t, fs.Mount(memRoot(t, "textures-hd", map[string]string{"a.png": "hd"}), 5, WithMountPoint("textures")))

	loc, err := fs.Resolve("~textures/a.png")
	require.NoError(t, err)
	require.Equal(t, "textures-hd", loc.Mount)
	require.Equal(t, "~textures/a.png", loc.Logical)

	loc, err = fs.Resolve("a.png")
	require.NoError(t, err)
	require.Equal(t, "general", loc.Mount, "plain paths skip mount-pointed roots")

	_, err = fs.Resolve("~shaders/a.png")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDirAndArchiveRoots(t *testing.T) {
	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(content, "tex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(content, "tex", "a.png"), []byte("dir"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(content, "tex", "only-dir.png"), []byte("dir"), 0o644))

	archive := filepath.Join(dir, "patch.zip")
	writeZip(t, archive, map[string]string{"tex/a.png": "zip", "shaders/basic.vert": "void main(){}"})

	fs := New()
	require.NoError(t, fs.MountDir(content, 0))
	require.NoError(t, fs.MountArchive(archive, 1))

	loc, err := fs.Resolve("tex/a.png")
	require.NoError(t, err)
	require.Equal(t, ArchiveRoot, loc.Kind)
	require.Equal(t, "patch", loc.Mount)
	require.Equal(t, archive+"!/tex/a.png", loc.Physical)
	_, ok := loc.HostPath()
	require.False(t, ok)

	data, _, err := fs.ReadFile("tex/a.png")
	require.NoError(t, err)
	require.Equal(t, "zip", string(data))

	loc, err = fs.Resolve("tex/only-dir.png")
	require.NoError(t, err)
	require.Equal(t, DirRoot, loc.Kind)
	host, ok := loc.HostPath()
	require.True(t, ok)
	require.Equal(t, filepath.Join(content, "tex", "only-dir.png"), host)

	f, _, err := fs.Open("shaders/basic.vert")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.DismountAll())
	require.Empty(t, fs.Mounts())
	require.False(t, fs.Exists("tex/a.png"))
}

func TestRootErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewDirRoot(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, ErrInvalidRoot)
	_, err = NewDirRoot(file)
	require.ErrorIs(t, err, ErrInvalidRoot)
	_, err = NewArchiveRoot(file)
	require.ErrorIs(t, err, ErrInvalidRoot)
	require.ErrorIs(t, New().Mount(nil, 0), ErrInvalidRoot)
}

func TestMountManagement(t *testing.T) {
	fs := New()
	require.NoError(t, fs.Mount(memRoot(t, "A", map[string]string{"a": "A"}), 0))
	require.ErrorIs(t, fs.Mount(memRoot(t, "A", nil), 0), ErrDuplicateMount)
	require.NoError(t, fs.Mount(memRoot(t, "A", map[string]string{"a": "A2"}), 0, WithName("A2")))

	loc, err := fs.Resolve("a")
	require.NoError(t, err)
	require.Equal(t, "A2", loc.Mount)

	require.NoError(t, fs.Dismount("A2"))
	require.ErrorIs(t, fs.Dismount("A2"), ErrMountNotFound)

	loc, err = fs.Resolve("a")
	require.NoError(t, err)
	require.Equal(t, "A", loc.Mount)
}

func TestMountEvents(t *testing.T) {
	b := bus.New()
	var got []string
	_, err := b.Subscribe(bus.Wildcard, func(e bus.Event) error {
		got = append(got, e.Type()+":"+e.Data().(map[string]any)["mount"].(string))
		return nil
	})
	require.NoError(t, err)

	fs := New(WithEvents(b))
	require.NoError(t, fs.Mount(memRoot(t, "A", nil), 0))
	require.NoError(t, fs.Dismount("A"))
	require.Equal(t, []string{bus.FileSystemMounted + ":A", bus.FileSystemDismounted + ":A"}, got)
}

func TestParseRootKind(t *testing.T) {
	for in, want := range map[string]RootKind{"": DirRoot, "dir": DirRoot, "ZIP": ArchiveRoot, "memory": MemoryRoot} {
		got, err := ParseRootKind(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseRootKind("tarball")
	require.ErrorIs(t, err, ErrInvalidRoot)
}

func TestPhysicalIdentity(t *testing.T) {
	t.Run("Same label roots stay distinct", func(t *testing.T) {
		fs := New()
		one := memRoot(t, "content", map[string]string{"x.txt": "A"})
		two := memRoot(t, "content", map[string]string{"y.txt": "B", "x.txt": "B"})
		require.NoError(t, fs.Mount(one, 0, WithName("one")))
		require.NoError(t, fs.Mount(two, 0, WithName("two"), WithMountPoint("two")))

		l1, err := fs.Resolve("x.txt")
		require.NoError(t, err)
		l2, err := fs.Resolve("~two/x.txt")
		require.NoError(t, err)
		require.NotEqual(t, l1.Physical, l2.Physical)

		d1, err := l1.ReadAll()
		require.NoError(t, err)
		d2, err := l2.ReadAll()
		require.NoError(t, err)
		require.Equal(t, "A", string(d1))
		require.Equal(t, "B", string(d2))
	})

	t.Run("Remount gets a new identity", func(t *testing.T) {
		fs := New()
		require.NoError(t, fs.Mount(memRoot(t, "content", map[string]string{"x.txt": "A"}), 0))
		before, err := fs.Resolve("x.txt")
		require.NoError(t, err)

		require.NoError(t, fs.Dismount("content"))
		require.NoError(t, fs.Mount(memRoot(t, "content", map[string]string{"x.txt": "B"}), 0))
		after, err := fs.Resolve("x.txt")
		require.NoError(t, err)
		require.NotEqual(t, before.Physical, after.Physical)
	})

	t.Run("Zip readers with the same label", func(t *testing.T) {
		dir := t.TempDir()
		readers := make([]*zip.Reader, 2)
		for i, content := range []string{"A", "B"} {
			archive := filepath.Join(dir, string(rune('a'+i))+".zip")
			writeZip(t, archive, map[string]string{"x.txt": content})
			rc, err := zip.OpenReader(archive)
			require.NoError(t, err)
			t.Cleanup(func() { _ = rc.Close() })
			readers[i] = &rc.Reader
		}

		fs := New()
		require.NoError(t, fs.Mount(NewZipReaderRoot("embedded", readers[0]), 0, WithName("first")))
		require.NoError(t, fs.Mount(NewZipReaderRoot("embedded", readers[1]), 0, WithName("second"), WithMountPoint("b")))

		l1, err := fs.Resolve("x.txt")
		require.NoError(t, err)
		l2, err := fs.Resolve("~b/x.txt")
		require.NoError(t, err)
		require.NotEqual(t, l1.Physical, l2.Physical)
	})

	t.Run("Host directories are keyed by path", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "x.txt"), []byte("A"), 0o644))

		fs := New()
		require.NoError(t, fs.MountDir(dir, 0, WithName("one")))
		require.NoError(t, fs.MountDir(dir, 0, WithName("two"), WithMountPoint("two")))

		l1, err := fs.Resolve("x.txt")
		require.NoError(t, err)
		l2, err := fs.Resolve("~two/x.txt")
		require.NoError(t, err)
		require.Equal(t, l1.Physical, l2.Physical)
	})
}

func TestResolveExtremePriorities(t *testing.T) {
	fs := New()
	require.NoError(t, fs.Mount(memRoot(t, "low", map[string]string{"a.txt": "low"}), math.MinInt+1))
	require.NoError(t, fs.Mount(memRoot(t, "high", map[string]string{"a.txt": "high"}), math.MaxInt))

	loc, err := fs.Resolve("a.txt")
	require.NoError(t, err)
	require.Equal(t, "high", loc.Mount)

	mounts := fs.Mounts()
	require.Equal(t, "high", mounts[0].Name)
	require.Equal(t, "low", mounts[1].Name)
}
