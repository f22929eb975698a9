package vfs

import (
	"fmt"
	"path"
	"strings"
)

// MountPointSymbol prefixes logical paths addressed to a named mount point,
// e.g. "~textures/wall.png".
const MountPointSymbol = '~'

// logicalPath is a validated logical path split into its mount point (empty
// for plain paths) and the slash-separated path inside the mount.
type logicalPath struct {
	mountPoint string
	rel        string
}

func (p logicalPath) String() string {
	if p.mountPoint == "" {
		return p.rel
	}
	return string(MountPointSymbol) + p.mountPoint + "/" + p.rel
}

// Clean validates and normalizes a logical path, returning its canonical form.
func Clean(logical string) (string, error) {
	p, err := parse(logical)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

func parse(logical string) (logicalPath, error) {
	if logical == "" {
		return logicalPath{}, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsRune(logical, 0) {
		return logicalPath{}, fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, logical)
	}

	p := strings.ReplaceAll(logical, `\`, "/")
	var out logicalPath
	if p[0] == MountPointSymbol {
		point, rest, ok := strings.Cut(p[1:], "/")
		if !ok || point == "" || point == "." || point == ".." {
			return logicalPath{}, fmt.Errorf("%w: %q has no mount point", ErrInvalidPath, logical)
		}
		out.mountPoint = point
		p = rest
	}

	if strings.HasPrefix(p, "/") || hasVolume(p) {
		return logicalPath{}, fmt.Errorf("%w: %q is absolute", ErrInvalidPath, logical)
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return logicalPath{}, fmt.Errorf("%w: %q escapes the mount root", ErrInvalidPath, logical)
	}
	out.rel = cleaned
	return out, nil
}

func hasVolume(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
