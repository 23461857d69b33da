// Package handles tracks the open file and directory handles a mounted
// volume has outstanding, mapping opaque uint64 ids (the only handle shape
// a C-callable boundary can hand a caller) to the underlying
// internal/fat.File/Dir values and the paths they were opened from.
//
// Grounded on original_source/src/capi_helpers/idstore.rs's IdStore, with
// both of its known issues fixed per SPEC_FULL.md §9: id issuance detects
// a full wraparound instead of silently colliding with a still-open
// handle, and directory iteration uses a persistent fat.DirIter per handle
// instead of re-iterating-and-skipping from the start on every read (an
// O(n^2) directory listing).
package handles

import (
	"errors"
	"math"
	"sync"

	"github.com/ischeinkman/nx-fatdrive/internal/fat"
)

// ErrNotFound is returned when an id names no open file or directory.
var ErrNotFound = errors.New("handles: id not found")

// ErrHandleSpaceExhausted is returned by issueID when every one of the
// 2^64 ids is currently in use. This can only happen if the wraparound
// counter laps itself without finding a free slot.
var ErrHandleSpaceExhausted = errors.New("handles: handle id space exhausted")

type openFile struct {
	path string
	file fat.File
}

type openDir struct {
	path string
	dir  fat.Dir
	iter fat.DirIter
}

// Registry is the single mutex-guarded table of open handles for one
// mounted volume.
type Registry struct {
	mu sync.Mutex

	nextID uint64
	files  map[uint64]*openFile
	dirs   map[uint64]*openDir
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		files: make(map[uint64]*openFile),
		dirs:  make(map[uint64]*openDir),
	}
}

// issueID returns a currently-unused id and advances the internal
// counter, wrapping at math.MaxUint64. Caller must hold r.mu.
func (r *Registry) issueID() (uint64, error) {
	start := r.nextID
	first := true
	for {
		id := r.nextID
		if r.nextID == math.MaxUint64 {
			r.nextID = 0
		} else {
			r.nextID++
		}
		if !first && id == start {
			return 0, ErrHandleSpaceExhausted
		}
		first = false
		if _, inFiles := r.files[id]; inFiles {
			continue
		}
		if _, inDirs := r.dirs[id]; inDirs {
			continue
		}
		return id, nil
	}
}

// HasFile returns the id of an already-open handle for path, if any.
func (r *Registry) HasFile(path string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.files {
		if f.path == path {
			return id, true
		}
	}
	return 0, false
}

// HasDir returns the id of an already-open handle for path, if any.
func (r *Registry) HasDir(path string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.dirs {
		if d.path == path {
			return id, true
		}
	}
	return 0, false
}

// OpenFile returns the id of an existing handle for path, or resolves and
// opens a new one against fs. Idempotent on path: opening the same path
// twice returns the same id, matching SPEC_FULL.md §9's resolution that
// path uniqueness on open is what makes the has_file/has_dir close
// ambiguity moot.
func (r *Registry) OpenFile(fs *fat.FileSystem, path string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.files {
		if f.path == path {
			return id, nil
		}
	}
	parent, name, err := fs.ResolveParent(path)
	if err != nil {
		return 0, err
	}
	file, err := parent.OpenFile(name)
	if err != nil {
		return 0, err
	}
	id, err := r.issueID()
	if err != nil {
		return 0, err
	}
	r.files[id] = &openFile{path: path, file: file}
	return id, nil
}

// OpenDir is OpenFile's directory counterpart. path == "" or "/" opens the
// volume root.
func (r *Registry) OpenDir(fs *fat.FileSystem, path string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.dirs {
		if d.path == path {
			return id, nil
		}
	}
	var dir fat.Dir
	if path == "" || path == "/" {
		dir = fs.Root()
	} else {
		resolved, err := fs.ResolveDir(path)
		if err != nil {
			return 0, err
		}
		dir = resolved
	}
	id, err := r.issueID()
	if err != nil {
		return 0, err
	}
	r.dirs[id] = &openDir{path: path, dir: dir}
	return id, nil
}

// CloseFile flushes and removes a file handle.
func (r *Registry) CloseFile(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.files, id)
	return f.file.Flush()
}

// CloseDir removes a directory handle and its iteration cursor.
func (r *Registry) CloseDir(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dirs[id]; !ok {
		return ErrNotFound
	}
	delete(r.dirs, id)
	return nil
}

// File returns the open file backing id.
func (r *Registry) File(id uint64) (fat.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f.file, nil
}

// PathFor returns the path a file or directory handle was opened from.
func (r *Registry) PathFor(id uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[id]; ok {
		return f.path, nil
	}
	if d, ok := r.dirs[id]; ok {
		return d.path, nil
	}
	return "", ErrNotFound
}

// StatPath resolves path's directory entry. When the parent directory is
// already open (tracked in r.dirs), that open handle is reused instead of
// re-resolving it from the root, mirroring the parent-scan shortcut
// original_source/src/capi_helpers/idstore.rs's stat_path takes.
func (r *Registry) StatPath(fs *fat.FileSystem, path string) (fat.DirEntryData, error) {
	r.mu.Lock()
	parentPath, name := splitParent(path)
	var parent fat.Dir
	for _, d := range r.dirs {
		if d.path == parentPath {
			parent = d.dir
			break
		}
	}
	r.mu.Unlock()

	if parent == nil {
		var err error
		if parentPath == "" || parentPath == "/" {
			parent = fs.Root()
		} else {
			parent, err = fs.ResolveDir(parentPath)
			if err != nil {
				return fat.DirEntryData{}, err
			}
		}
	}
	return parent.Stat(name)
}

func splitParent(path string) (parentPath, name string) {
	parts := fat.SplitPath(path)
	if len(parts) == 0 {
		return "", ""
	}
	name = parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		parentPath += "/" + p
	}
	return parentPath, name
}

// ReadNextDirent advances id's persistent iteration cursor by one
// entry. ok is false once the directory is exhausted (not an error).
func (r *Registry) ReadNextDirent(id uint64) (entry fat.DirEntryData, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, found := r.dirs[id]
	if !found {
		return fat.DirEntryData{}, false, ErrNotFound
	}
	if d.iter == nil {
		it, err := d.dir.Iter()
		if err != nil {
			return fat.DirEntryData{}, false, err
		}
		d.iter = it
	}
	return d.iter.Next()
}
