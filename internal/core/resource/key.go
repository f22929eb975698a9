package resource

import "github.com/cespare/xxhash/v2"

// Kind names a family of resources sharing one loader, e.g. "texture".
type Kind string

// Key is the canonical identity of a cached resource: where its bytes live and
// how they were interpreted. The same file loaded as two kinds is two entries.
type Key struct {
	Physical string
	Kind     Kind
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.Physical
}

func (k Key) hash() uint64 {
	return xxhash.Sum64String(k.String())
}
