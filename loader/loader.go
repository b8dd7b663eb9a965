// Package loader abstracts where mapping documents come from, so the
// configuration builder can pull mapper resources from disk, an embedded
// filesystem or test fixtures through one boundary.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Loader opens a named resource for reading.
type Loader interface {
	Open(name string) (io.ReadCloser, error)
}

// FS serves resources from any fs.FS, including embed.FS.
type FS struct {
	fsys fs.FS
}

// NewFS wraps fsys as a Loader.
func NewFS(fsys fs.FS) *FS { return &FS{fsys: fsys} }

func (l *FS) Open(name string) (io.ReadCloser, error) {
	f, err := l.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening resource %q: %w", name, err)
	}
	return f, nil
}

// Dir serves resources relative to a directory on disk.
func Dir(path string) Loader { return NewFS(os.DirFS(path)) }

// Map serves in-memory resources keyed by name.
type Map map[string]string

func (m Map) Open(name string) (io.ReadCloser, error) {
	doc, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("opening resource %q: %w", name, fs.ErrNotExist)
	}
	return io.NopCloser(strings.NewReader(doc)), nil
}

// Composite tries each loader in order and returns the first success.
type Composite []Loader

func (c Composite) Open(name string) (io.ReadCloser, error) {
	var errs []error
	for _, l := range c {
		rc, err := l.Open(name)
		if err == nil {
			return rc, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("opening resource %q: no loaders configured", name)
	}
	return nil, errors.Join(errs...)
}
