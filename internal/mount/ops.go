package mount

import (
	"github.com/ischeinkman/nx-fatdrive/internal/fat"
	"github.com/ischeinkman/nx-fatdrive/internal/handles"
)

// withHandlesAndFS acquires the handle registry and the filesystem, in that
// order, matching §5's Handle-Registry -> FileSystem -> USB lock ordering.
func withHandlesAndFS(fn func(*handles.Registry, *fat.FileSystem) error) error {
	return withHandles(func(h *handles.Registry) error {
		return withFS(func(fs *fat.FileSystem) error {
			return fn(h, fs)
		})
	})
}

// OpenFile resolves and opens path, returning its handle id.
func OpenFile(path string) (id uint64, err error) {
	err = withHandlesAndFS(func(h *handles.Registry, fs *fat.FileSystem) error {
		var e error
		id, e = h.OpenFile(fs, path)
		return e
	})
	return id, err
}

// OpenDir resolves and opens path as a directory, returning its handle id.
func OpenDir(path string) (id uint64, err error) {
	err = withHandlesAndFS(func(h *handles.Registry, fs *fat.FileSystem) error {
		var e error
		id, e = h.OpenDir(fs, path)
		return e
	})
	return id, err
}

// CloseFile flushes and releases a file handle.
func CloseFile(id uint64) error {
	return withHandles(func(h *handles.Registry) error { return h.CloseFile(id) })
}

// CloseDir releases a directory handle.
func CloseDir(id uint64) error {
	return withHandles(func(h *handles.Registry) error { return h.CloseDir(id) })
}

// ReadFile reads into buf from id's current cursor.
func ReadFile(id uint64, buf []byte) (n int, err error) {
	err = withHandles(func(h *handles.Registry) error {
		f, e := h.File(id)
		if e != nil {
			return e
		}
		n, e = f.Read(buf)
		return e
	})
	return n, err
}

// WriteFile writes buf at id's current cursor.
func WriteFile(id uint64, buf []byte) (n int, err error) {
	err = withHandles(func(h *handles.Registry) error {
		f, e := h.File(id)
		if e != nil {
			return e
		}
		n, e = f.Write(buf)
		return e
	})
	return n, err
}

// SeekFile repositions id's cursor and returns the new absolute offset.
func SeekFile(id uint64, offset int64, whence int) (pos int64, err error) {
	err = withHandles(func(h *handles.Registry) error {
		f, e := h.File(id)
		if e != nil {
			return e
		}
		pos, e = f.Seek(offset, whence)
		return e
	})
	return pos, err
}

// SyncFile flushes id's buffered writes to the device.
func SyncFile(id uint64) error {
	return withHandles(func(h *handles.Registry) error {
		f, e := h.File(id)
		if e != nil {
			return e
		}
		return f.Flush()
	})
}

// TruncateFile resizes id's file to size bytes.
func TruncateFile(id uint64, size int64) error {
	return withHandles(func(h *handles.Registry) error {
		f, e := h.File(id)
		if e != nil {
			return e
		}
		return f.Truncate(size)
	})
}

// StatFile reports the directory entry backing an open file or directory
// handle, resolved by re-statting the path it was opened from.
func StatFile(id uint64) (entry fat.DirEntryData, err error) {
	err = withHandlesAndFS(func(h *handles.Registry, fs *fat.FileSystem) error {
		path, e := h.PathFor(id)
		if e != nil {
			return e
		}
		entry, e = h.StatPath(fs, path)
		return e
	})
	return entry, err
}

// StatPath reports path's directory entry without requiring it be open.
func StatPath(path string) (entry fat.DirEntryData, err error) {
	err = withHandlesAndFS(func(h *handles.Registry, fs *fat.FileSystem) error {
		var e error
		entry, e = h.StatPath(fs, path)
		return e
	})
	return entry, err
}

// StatFilesystem reports cluster/free-space statistics for the mounted
// volume.
func StatFilesystem() (stats fat.FsStats, err error) {
	err = withFS(func(fs *fat.FileSystem) error {
		var e error
		stats, e = fs.Stats()
		return e
	})
	return stats, err
}

// ReadDir advances id's directory iteration cursor by one entry. ok is
// false once the directory is exhausted.
func ReadDir(id uint64) (entry fat.DirEntryData, ok bool, err error) {
	err = withHandles(func(h *handles.Registry) error {
		var e error
		entry, ok, e = h.ReadNextDirent(id)
		return e
	})
	return entry, ok, err
}

// CreateFile creates a new, empty file at path.
func CreateFile(path string) error {
	return withHandlesAndFS(func(_ *handles.Registry, fs *fat.FileSystem) error {
		parent, name, e := fs.ResolveParent(path)
		if e != nil {
			return e
		}
		_, e = parent.CreateFile(name)
		return e
	})
}

// CreateDir creates a new, empty directory at path.
func CreateDir(path string) error {
	return withHandlesAndFS(func(_ *handles.Registry, fs *fat.FileSystem) error {
		parent, name, e := fs.ResolveParent(path)
		if e != nil {
			return e
		}
		_, e = parent.CreateDirectory(name)
		return e
	})
}

// DeleteFile closes any handle already open on path, then removes it.
// Matches original_source/src/capi_helpers/usbfs.rs's usbFsDeleteFile,
// which refuses to leave a dangling handle pointed at a removed entry.
func DeleteFile(path string) error {
	return withHandlesAndFS(func(h *handles.Registry, fs *fat.FileSystem) error {
		if id, ok := h.HasFile(path); ok {
			if e := h.CloseFile(id); e != nil {
				return e
			}
		}
		parent, name, e := fs.ResolveParent(path)
		if e != nil {
			return e
		}
		return parent.RemovePath(name)
	})
}

// DeleteDir closes any handle already open on path, then removes it. Fails
// if the directory is not empty (fat.Dir.RemovePath's contract).
func DeleteDir(path string) error {
	return withHandlesAndFS(func(h *handles.Registry, fs *fat.FileSystem) error {
		if id, ok := h.HasDir(path); ok {
			if e := h.CloseDir(id); e != nil {
				return e
			}
		}
		parent, name, e := fs.ResolveParent(path)
		if e != nil {
			return e
		}
		return parent.RemovePath(name)
	})
}
