package module

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Descriptor identifies a watched module.
type Descriptor struct {
	manifest *Manifest
	// Path is the module path as given by the user.
	Path string
	// Dir is the absolute module root.
	Dir string
	// Name is the manifest name, immutable once read.
	Name string
}

// Manifest returns the manifest as read when the descriptor was created.
func (d *Descriptor) Manifest() *Manifest {
	return d.manifest
}

// Registry creates descriptors and caches them per path for the lifetime
// of the process.
type Registry struct {
	byPath  map[string]*Descriptor
	baseDir string
	mu      sync.Mutex
}

// NewRegistry creates a registry resolving relative paths against baseDir.
func NewRegistry(baseDir string) *Registry {
	return &Registry{
		baseDir: baseDir,
		byPath:  make(map[string]*Descriptor),
	}
}

// Get returns the descriptor for path, reading its manifest on first use.
func (r *Registry) Get(path string) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if desc, ok := r.byPath[path]; ok {
		return desc, nil
	}

	dir := path
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.baseDir, dir)
	}
	dir = filepath.Clean(dir)

	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", path, err)
	}

	desc := &Descriptor{
		manifest: manifest,
		Path:     path,
		Dir:      dir,
		Name:     manifest.Name,
	}
	r.byPath[path] = desc
	return desc, nil
}

// Forget drops a cached descriptor. Used when a module could not be added.
func (r *Registry) Forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPath, path)
}
