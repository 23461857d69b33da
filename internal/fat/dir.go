package fat

import (
	"fmt"
	"strings"
)

// dirHandle is the concrete Dir implementation. Root directories on
// FAT12/16 live in a fixed-size region (fixedRootOffset/fixedRootSize);
// every other directory, and the FAT32 root, is an ordinary cluster chain
// starting at firstCluster.
type dirHandle struct {
	fs *FileSystem

	isRoot bool

	firstCluster uint32 // 0 for a FAT12/16 fixed root

	fixedRootOffset int64
	fixedRootSize   int64
}

// entryLocation names one 32-byte slot: either an offset within the fixed
// root region, or a (cluster, offset-within-cluster) pair.
type entryLocation struct {
	byteOffset int64 // absolute, from start of volume
}

func (d *dirHandle) isFixedRoot() bool {
	return d.isRoot && d.firstCluster == 0
}

// slots returns the absolute byte offset of every 32-byte directory entry
// slot currently allocated to this directory, in on-disk order.
func (d *dirHandle) slots() ([]entryLocation, error) {
	if d.isFixedRoot() {
		n := d.fixedRootSize / sizeDirEntry
		out := make([]entryLocation, n)
		for i := int64(0); i < n; i++ {
			out[i] = entryLocation{byteOffset: d.fixedRootOffset + i*sizeDirEntry}
		}
		return out, nil
	}

	clusters, err := d.fs.chain(d.firstCluster)
	if err != nil {
		return nil, err
	}
	perCluster := d.fs.bpb.clusterSize() / sizeDirEntry
	out := make([]entryLocation, 0, int64(len(clusters))*perCluster)
	for _, c := range clusters {
		base := d.fs.bpb.byteOffsetOfCluster(c)
		for i := int64(0); i < perCluster; i++ {
			out = append(out, entryLocation{byteOffset: base + i*sizeDirEntry})
		}
	}
	return out, nil
}

func (d *dirHandle) readEntry(loc entryLocation) (rawDirEntry, error) {
	raw, err := d.fs.readAt(loc.byteOffset, sizeDirEntry)
	if err != nil {
		return rawDirEntry{}, err
	}
	return decodeDirEntry(raw), nil
}

func (d *dirHandle) writeEntry(loc entryLocation, e rawDirEntry) error {
	return d.fs.writeAt(loc.byteOffset, encodeDirEntry(e))
}

// find scans for a child named name, returning its decoded entry and slot.
func (d *dirHandle) find(name string) (rawDirEntry, entryLocation, error) {
	locs, err := d.slots()
	if err != nil {
		return rawDirEntry{}, entryLocation{}, err
	}
	target := strings.ToLower(name)
	for _, loc := range locs {
		e, err := d.readEntry(loc)
		if err != nil {
			return rawDirEntry{}, entryLocation{}, err
		}
		if e.end {
			break
		}
		if e.free || e.attr&attrVolumeID != 0 {
			continue
		}
		if shortNameToDisplay(e.name) == target {
			return e, loc, nil
		}
	}
	return rawDirEntry{}, entryLocation{}, ErrNotFound
}

// allocSlot returns a writable slot for a brand new entry: a reused free
// slot if one exists before the end marker, otherwise the end-marker slot
// itself (which gets overwritten and the new end marker advanced), growing
// the chain by one cluster if the directory is completely full.
func (d *dirHandle) allocSlot() (entryLocation, error) {
	locs, err := d.slots()
	if err != nil {
		return entryLocation{}, err
	}
	var endIdx = -1
	for i, loc := range locs {
		e, err := d.readEntry(loc)
		if err != nil {
			return entryLocation{}, err
		}
		if e.free {
			return loc, nil
		}
		if e.end {
			endIdx = i
			break
		}
	}
	if endIdx >= 0 {
		if endIdx+1 < len(locs) {
			if err := d.writeEntry(locs[endIdx+1], rawDirEntry{end: true}); err != nil {
				return entryLocation{}, err
			}
		}
		return locs[endIdx], nil
	}

	// Directory is full to the last slot with no end marker found: for a
	// fixed-size root this is ENOSPC; for a cluster-chain directory, grow
	// it by one cluster.
	if d.isFixedRoot() {
		return entryLocation{}, fmt.Errorf("fat: root directory full")
	}
	clusters, err := d.fs.chain(d.firstCluster)
	if err != nil {
		return entryLocation{}, err
	}
	last := d.firstCluster
	if len(clusters) > 0 {
		last = clusters[len(clusters)-1]
	}
	newCluster, err := d.fs.extendChain(last)
	if err != nil {
		return entryLocation{}, err
	}
	zero := make([]byte, d.fs.bpb.clusterSize())
	if err := d.fs.writeAt(d.fs.bpb.byteOffsetOfCluster(newCluster), zero); err != nil {
		return entryLocation{}, err
	}
	return entryLocation{byteOffset: d.fs.bpb.byteOffsetOfCluster(newCluster)}, nil
}

// --- Dir interface (interfaces.go) ---

func (d *dirHandle) Iter() (DirIter, error) {
	locs, err := d.slots()
	if err != nil {
		return nil, err
	}
	return &dirIter{dir: d, locs: locs}, nil
}

func (d *dirHandle) Stat(name string) (DirEntryData, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	e, _, err := d.find(name)
	if err != nil {
		return DirEntryData{}, err
	}
	return e.toData(), nil
}

func (d *dirHandle) OpenFile(name string) (File, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	e, loc, err := d.find(name)
	if err != nil {
		return nil, err
	}
	if e.isDirectory() {
		return nil, ErrIsADirectory
	}
	return &fileHandle{fs: d.fs, parent: d, entryLoc: loc, firstCluster: e.firstCluster, size: int64(e.fileSize)}, nil
}

func (d *dirHandle) OpenDirectory(name string) (Dir, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	e, _, err := d.find(name)
	if err != nil {
		return nil, err
	}
	if !e.isDirectory() {
		return nil, ErrNotADirectory
	}
	return &dirHandle{fs: d.fs, firstCluster: e.firstCluster}, nil
}

func (d *dirHandle) CreateFile(name string) (File, error) {
	if !validShortName(name) {
		return nil, ErrInvalidPath
	}
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if _, _, err := d.find(name); err == nil {
		return nil, ErrExists
	}
	loc, err := d.allocSlot()
	if err != nil {
		return nil, err
	}
	entry := rawDirEntry{name: strings.ToUpper(name), attr: attrArchive}
	if err := d.writeEntry(loc, entry); err != nil {
		return nil, err
	}
	if err := d.fs.flushDevice(); err != nil {
		return nil, err
	}
	return &fileHandle{fs: d.fs, parent: d, entryLoc: loc, firstCluster: 0, size: 0}, nil
}

func (d *dirHandle) CreateDirectory(name string) (Dir, error) {
	if !validShortName(name) {
		return nil, ErrInvalidPath
	}
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if _, _, err := d.find(name); err == nil {
		return nil, ErrExists
	}

	newCluster, err := d.fs.allocCluster()
	if err != nil {
		return nil, err
	}
	zero := make([]byte, d.fs.bpb.clusterSize())
	if err := d.fs.writeAt(d.fs.bpb.byteOffsetOfCluster(newCluster), zero); err != nil {
		return nil, err
	}
	if err := d.fs.flushTable(); err != nil {
		return nil, err
	}

	loc, err := d.allocSlot()
	if err != nil {
		return nil, err
	}
	entry := rawDirEntry{name: strings.ToUpper(name), attr: attrDirectory, firstCluster: newCluster}
	if err := d.writeEntry(loc, entry); err != nil {
		return nil, err
	}
	if err := d.fs.flushDevice(); err != nil {
		return nil, err
	}
	return &dirHandle{fs: d.fs, firstCluster: newCluster}, nil
}

func (d *dirHandle) RemovePath(name string) error {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	e, loc, err := d.find(name)
	if err != nil {
		return err
	}
	if e.isDirectory() {
		sub := &dirHandle{fs: d.fs, firstCluster: e.firstCluster}
		locs, err := sub.slots()
		if err != nil {
			return err
		}
		for _, l := range locs {
			child, err := sub.readEntry(l)
			if err != nil {
				return err
			}
			if child.end {
				break
			}
			if !child.free {
				return fmt.Errorf("fat: directory %q not empty", name)
			}
		}
	}

	if e.firstCluster != 0 {
		clusters, err := d.fs.chain(e.firstCluster)
		if err != nil {
			return err
		}
		d.fs.freeChain(clusters)
		if err := d.fs.flushTable(); err != nil {
			return err
		}
	}
	if err := d.writeEntry(loc, rawDirEntry{free: true}); err != nil {
		return err
	}
	return d.fs.flushDevice()
}

// dirIter is the persistent, O(1)-per-step directory cursor fixing the
// re-scan-from-start-each-call pattern SPEC_FULL.md §9 flags.
type dirIter struct {
	dir  *dirHandle
	locs []entryLocation
	pos  int
}

func (it *dirIter) Next() (DirEntryData, bool, error) {
	it.dir.fs.mu.Lock()
	defer it.dir.fs.mu.Unlock()

	for it.pos < len(it.locs) {
		loc := it.locs[it.pos]
		it.pos++
		e, err := it.dir.readEntry(loc)
		if err != nil {
			return DirEntryData{}, false, err
		}
		if e.end {
			return DirEntryData{}, false, nil
		}
		if e.free || e.attr&attrVolumeID != 0 {
			continue
		}
		return e.toData(), true, nil
	}
	return DirEntryData{}, false, nil
}
