package fat

// File, Dir and DirIter are the capability-based contracts the rest of the
// system (internal/handles, capi) programs against, rather than the
// concrete *fileHandle/*dirHandle types directly. This is the interface
// design SPEC_FULL.md §4.6 describes: callers depend on what an open handle can do,
// not on which FAT variant produced it.
type File interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Flush() error
	Truncate(size int64) error
}

// Dir is an open directory: a namespace of children plus the operations
// that create, open or remove them.
type Dir interface {
	OpenFile(name string) (File, error)
	CreateFile(name string) (File, error)
	OpenDirectory(name string) (Dir, error)
	CreateDirectory(name string) (Dir, error)
	RemovePath(name string) error
	Stat(name string) (DirEntryData, error)
	Iter() (DirIter, error)
}

// DirIter is a persistent, single-pass cursor over a directory's children.
// Next returns (entry, true, nil) for each child in turn, and (_, false,
// nil) once exhausted. It never re-scans from the start: each call resumes
// exactly where the last left off, which is what makes directory listing
// of an N-entry directory O(N) instead of O(N^2).
type DirIter interface {
	Next() (DirEntryData, bool, error)
}
