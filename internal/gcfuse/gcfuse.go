// Package gcfuse serves a read-only view of a GameCube ISO's FST as a
// mounted filesystem. It parses the FST once into an in-memory inode
// table and then answers every read by translating a requested byte range
// directly into an io.ReaderAt call against the backing ISO file; no
// payload is ever copied into the inode table.
package gcfuse

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bootregion"
	"github.com/discgc/gcfst/internal/fst"
)

const (
	rootInode       fuseops.InodeID = fuseops.RootInodeID
	systemDataInode fuseops.InodeID = fuseops.RootInodeID + 1
	firstFreeInode  fuseops.InodeID = systemDataInode + 1
)

type inode struct {
	name   string
	isDir  bool
	parent fuseops.InodeID

	// directory fields
	children []fuseops.InodeID
	byName   map[string]fuseops.InodeID

	// file fields
	dataOffset, size int64
}

// FS is a read-only fuseutil.FileSystem over one parsed ISO.
type FS struct {
	fuseutil.NotImplementedFileSystem

	iso    *os.File
	inodes map[fuseops.InodeID]*inode
	next   fuseops.InodeID
}

// Open parses isoPath's FST and boot region into an inode table ready to
// be served.
func Open(isoPath string) (*FS, error) {
	f, err := os.Open(isoPath)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %v", isoPath, err)
	}
	hi, err := bootregion.ReadHeaderInfoAt(f)
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("reading header info: %w", err)
	}
	fstBuf := make([]byte, hi.FSTSize)
	if _, err := f.ReadAt(fstBuf, hi.FSTOffset); err != nil {
		f.Close()
		return nil, xerrors.Errorf("reading FST region: %w: %v", gcfst.ErrInvalidISO, err)
	}
	events, err := fst.Read(fstBuf, 0)
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("reading FST: %w", err)
	}

	fsys := &FS{
		iso:    f,
		inodes: map[fuseops.InodeID]*inode{},
		next:   firstFreeInode,
	}
	fsys.inodes[rootInode] = &inode{isDir: true, byName: map[string]fuseops.InodeID{}}
	fsys.buildSystemData(hi)
	if err := fsys.buildTree(events); err != nil {
		f.Close()
		return nil, err
	}
	return fsys, nil
}

func (fs *FS) allocInode() fuseops.InodeID {
	id := fs.next
	fs.next++
	return id
}

func (fs *FS) addChild(parent fuseops.InodeID, n *inode) fuseops.InodeID {
	id := fs.allocInode()
	fs.inodes[id] = n
	n.parent = parent
	p := fs.inodes[parent]
	p.children = append(p.children, id)
	p.byName[n.name] = id
	return id
}

// buildSystemData synthesizes &&systemdata as a directory of the three
// boot blobs, mirroring the on-host layout the full extractor writes, so
// the same paths work under a mount or an extraction.
func (fs *FS) buildSystemData(hi bootregion.HeaderInfo) {
	sysDir := &inode{name: gcfst.SystemDataDirName, isDir: true, byName: map[string]fuseops.InodeID{}}
	fs.inodes[systemDataInode] = sysDir
	sysDir.parent = rootInode
	fs.inodes[rootInode].children = append(fs.inodes[rootInode].children, systemDataInode)
	fs.inodes[rootInode].byName[gcfst.SystemDataDirName] = systemDataInode
	fs.next = firstFreeInode

	hdrStart, hdrEnd := bootregion.IsoHdrExtent()
	fs.addChild(systemDataInode, &inode{name: gcfst.IsoHdrName, dataOffset: hdrStart, size: hdrEnd - hdrStart})

	if appStart, appEnd, err := bootregion.AppLoaderExtentAt(fs.iso); err == nil {
		fs.addChild(systemDataInode, &inode{name: gcfst.AppLoaderName, dataOffset: appStart, size: appEnd - appStart})
	}
	if dolStart, dolEnd, err := bootregion.DolExtentAt(fs.iso, hi.DolOffset); err == nil {
		fs.addChild(systemDataInode, &inode{name: gcfst.DolName, dataOffset: dolStart, size: dolEnd - dolStart})
	}
}

func (fs *FS) buildTree(events fst.Events) error {
	stack := []fuseops.InodeID{rootInode}
	for _, ev := range events {
		cur := stack[len(stack)-1]
		switch ev.Kind {
		case fst.PushDir:
			id := fs.addChild(cur, &inode{name: ev.Name, isDir: true, byName: map[string]fuseops.InodeID{}})
			stack = append(stack, id)
		case fst.PopDir:
			if len(stack) == 1 {
				return xerrors.Errorf("unbalanced PopDir: %w", gcfst.ErrInvalidISO)
			}
			stack = stack[:len(stack)-1]
		case fst.File:
			fs.addChild(cur, &inode{name: ev.Name, dataOffset: ev.DataOffset, size: ev.Size})
		}
	}
	return nil
}

// Close releases the backing ISO file handle.
func (fs *FS) Close() error { return fs.iso.Close() }

var mountTime = time.Now()

func (fs *FS) attributesFor(n *inode) fuseops.InodeAttributes {
	mode := os.FileMode(0o444)
	if n.isDir {
		mode = os.ModeDir | 0o555
	}
	return fuseops.InodeAttributes{
		Size:  uint64(n.size),
		Nlink: 1,
		Mode:  mode,
		Atime: mountTime,
		Mtime: mountTime,
		Ctime: mountTime,
	}
}

func (fs *FS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, ok := fs.inodes[op.Parent]
	if !ok || !parent.isDir {
		return fuse.EIO
	}
	id, ok := parent.byName[op.Name]
	if !ok {
		return fuse.ENOENT
	}
	op.Entry.Child = id
	op.Entry.Attributes = fs.attributesFor(fs.inodes[id])
	return nil
}

func (fs *FS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	n, ok := fs.inodes[op.Inode]
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes = fs.attributesFor(n)
	return nil
}

func (fs *FS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	n, ok := fs.inodes[op.Inode]
	if !ok || !n.isDir {
		return fuse.ENOENT
	}
	return nil
}

func (fs *FS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	n, ok := fs.inodes[op.Inode]
	if !ok || !n.isDir {
		return fuse.ENOENT
	}
	children := append([]fuseops.InodeID(nil), n.children...)
	sort.Slice(children, func(i, j int) bool {
		return fs.inodes[children[i]].name < fs.inodes[children[j]].name
	})

	offset := 0
	for i, id := range children {
		if fuseops.DirOffset(i) < op.Offset {
			continue
		}
		c := fs.inodes[id]
		typ := fuseutil.DT_File
		if c.isDir {
			typ = fuseutil.DT_Directory
		}
		de := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i) + 1,
			Inode:  id,
			Name:   c.name,
			Type:   typ,
		}
		n := fuseutil.WriteDirent(op.Dst[offset:], de)
		if n == 0 {
			break
		}
		offset += n
	}
	op.BytesRead = offset
	return nil
}

func (fs *FS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	n, ok := fs.inodes[op.Inode]
	if !ok || n.isDir {
		return fuse.ENOENT
	}
	return nil
}

func (fs *FS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	n, ok := fs.inodes[op.Inode]
	if !ok || n.isDir {
		return fuse.ENOENT
	}
	if op.Offset >= n.size {
		op.BytesRead = 0
		return nil
	}
	end := op.Offset + int64(len(op.Dst))
	if end > n.size {
		end = n.size
	}
	read, err := fs.iso.ReadAt(op.Dst[:end-op.Offset], n.dataOffset+op.Offset)
	op.BytesRead = read
	if err != nil {
		return xerrors.Errorf("reading %s: %v", n.name, err)
	}
	return nil
}
