package main

import (
	"xferx/filesystem"
	"xferx/volumes"
)

// resolveRef splits "VOL:path" (or a bare path against the default volume)
// and returns the mounted filesystem plus the remaining path component.
func resolveRef(ref string) (filesystem.Filesystem, string, error) {
	id, path := volumes.Split(ref)
	fs, err := registry.Get(id)
	if err != nil {
		return nil, "", err
	}
	return fs, path, nil
}

// tryResolveRef is resolveRef without the error: ok is false when ref names
// no mounted volume identifier, so COPY can fall back to treating it as a
// host filesystem path instead.
func tryResolveRef(ref string) (fs filesystem.Filesystem, path string, ok bool) {
	id, rest := volumes.Split(ref)
	if id == "" {
		return nil, "", false
	}
	got, err := registry.Get(id)
	if err != nil {
		return nil, "", false
	}
	return got, rest, true
}
