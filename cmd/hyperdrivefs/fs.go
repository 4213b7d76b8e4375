// Copyright 2025 The Hyperdrive Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	hdrive "github.com/driveup/hyperdrive/internal/drive"
	"github.com/driveup/hyperdrive/internal/driveerr"
	"github.com/driveup/hyperdrive/internal/statcodec"
)

// fileSystem adapts a *drive.Drive to fuseutil.FileSystem. It keeps an
// inode table mapping fuseops.InodeID to drive paths, the way the
// teacher's internal/fs keeps an inode index over GCS object names --
// scoped down here to the operations spec.md's file model actually
// supports (no hard links, no rename).
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	d *hdrive.Drive

	mu        sync.Mutex
	paths     map[fuseops.InodeID]string
	inodes    map[string]fuseops.InodeID
	nextInode fuseops.InodeID

	dirHandles  map[fuseops.HandleID][]fuseutil.Dirent
	fileHandles map[fuseops.HandleID]int
	nextHandle  fuseops.HandleID
}

func newFileSystem(d *hdrive.Drive) *fileSystem {
	fs := &fileSystem{
		d:           d,
		paths:       map[fuseops.InodeID]string{fuseops.RootInodeID: "/"},
		inodes:      map[string]fuseops.InodeID{"/": fuseops.RootInodeID},
		nextInode:   fuseops.RootInodeID + 1,
		dirHandles:  make(map[fuseops.HandleID][]fuseutil.Dirent),
		fileHandles: make(map[fuseops.HandleID]int),
		nextHandle:  1,
	}
	return fs
}

// inodeForLocked assigns (or reuses) the inode for a drive path. Caller holds
// fs.mu.
func (fs *fileSystem) inodeForLocked(p string) fuseops.InodeID {
	if id, ok := fs.inodes[p]; ok {
		return id
	}
	id := fs.nextInode
	fs.nextInode++
	fs.inodes[p] = id
	fs.paths[id] = p
	return id
}

func (fs *fileSystem) pathOf(id fuseops.InodeID) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p, ok := fs.paths[id]
	return p, ok
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// toErrno maps a *driveerr.Error to the errno fuse reports to the
// kernel; anything else surfaces as EIO.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case driveerr.Is(err, driveerr.KindFileNotFound):
		return syscall.ENOENT
	case driveerr.Is(err, driveerr.KindPathAlreadyExists):
		return syscall.EEXIST
	case driveerr.Is(err, driveerr.KindDirectoryNotEmpty):
		return syscall.ENOTEMPTY
	default:
		return err
	}
}

func attributesFor(st *statcodec.Stat) fuseops.InodeAttributes {
	attr := fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  os.FileMode(st.Mode & 0o7777),
		Uid:   st.UID,
		Gid:   st.GID,
		Atime: st.Mtime,
		Mtime: st.Mtime,
		Ctime: st.Ctime,
	}
	switch st.Kind {
	case statcodec.KindDirectory:
		attr.Mode |= os.ModeDir
	case statcodec.KindSymlink:
		attr.Mode |= os.ModeSymlink
	case statcodec.KindFile:
		attr.Size = st.Size
	}
	return attr
}

func (fs *fileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 4096
	op.IoSize = 4096
	return nil
}

func (fs *fileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, ok := fs.pathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := childPath(parent, op.Name)

	st, _, err := fs.d.Lstat(ctx, p, hdrive.LstatOptions{})
	if err != nil {
		return toErrno(err)
	}

	fs.mu.Lock()
	id := fs.inodeForLocked(p)
	fs.mu.Unlock()

	op.Entry.Child = id
	op.Entry.Attributes = attributesFor(st)
	return nil
}

func (fs *fileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	p, ok := fs.pathOf(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	st, _, err := fs.d.Lstat(ctx, p, hdrive.LstatOptions{})
	if err != nil {
		return toErrno(err)
	}
	op.Attributes = attributesFor(st)
	return nil
}

func (fs *fileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parent, ok := fs.pathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := childPath(parent, op.Name)

	st, err := fs.d.Mkdir(ctx, p, hdrive.StatOpts{Mode: uint32(0o40000 | op.Mode.Perm())})
	if err != nil {
		return toErrno(err)
	}

	fs.mu.Lock()
	id := fs.inodeForLocked(p)
	fs.mu.Unlock()

	op.Entry.Child = id
	op.Entry.Attributes = attributesFor(st)
	return nil
}

func (fs *fileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	parent, ok := fs.pathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := childPath(parent, op.Name)

	st, err := fs.d.WriteFile(ctx, p, nil, hdrive.StatOpts{Mode: uint32(0o100000 | op.Mode.Perm())})
	if err != nil {
		return toErrno(err)
	}

	fd, err := fs.d.Open(ctx, p, os.O_RDWR)
	if err != nil {
		return toErrno(err)
	}

	fs.mu.Lock()
	id := fs.inodeForLocked(p)
	op.Handle = fs.nextHandle
	fs.nextHandle++
	fs.fileHandles[op.Handle] = fd
	fs.mu.Unlock()

	op.Entry.Child = id
	op.Entry.Attributes = attributesFor(st)
	return nil
}

func (fs *fileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	parent, ok := fs.pathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	p := childPath(parent, op.Name)

	st, err := fs.d.Symlink(ctx, op.Target, p, hdrive.StatOpts{Mode: 0o120777})
	if err != nil {
		return toErrno(err)
	}

	fs.mu.Lock()
	id := fs.inodeForLocked(p)
	fs.mu.Unlock()

	op.Entry.Child = id
	op.Entry.Attributes = attributesFor(st)
	return nil
}

func (fs *fileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	p, ok := fs.pathOf(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	st, _, err := fs.d.Lstat(ctx, p, hdrive.LstatOptions{})
	if err != nil {
		return toErrno(err)
	}
	op.Target = st.LinkName
	return nil
}

func (fs *fileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	parent, ok := fs.pathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	return toErrno(fs.d.Rmdir(ctx, childPath(parent, op.Name)))
}

func (fs *fileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	parent, ok := fs.pathOf(op.Parent)
	if !ok {
		return syscall.ENOENT
	}
	return toErrno(fs.d.Unlink(ctx, childPath(parent, op.Name)))
}

func (fs *fileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	p, ok := fs.pathOf(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	names, err := fs.d.Readdir(ctx, p, false)
	if err != nil {
		return toErrno(err)
	}

	dirents := make([]fuseutil.Dirent, 0, len(names))
	for i, name := range names {
		full := childPath(p, name)
		base := path.Base(strings.TrimPrefix(full, p))
		st, _, err := fs.d.Lstat(ctx, full, hdrive.LstatOptions{})
		if err != nil {
			continue
		}
		fs.mu.Lock()
		id := fs.inodeForLocked(full)
		fs.mu.Unlock()

		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  id,
			Name:   base,
			Type:   direntType(st.Kind),
		})
	}

	fs.mu.Lock()
	op.Handle = fs.nextHandle
	fs.nextHandle++
	fs.dirHandles[op.Handle] = dirents
	fs.mu.Unlock()
	return nil
}

func direntType(k statcodec.Kind) fuseutil.DirentType {
	switch k {
	case statcodec.KindDirectory:
		return fuseutil.DT_Directory
	case statcodec.KindSymlink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

func (fs *fileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	dirents := fs.dirHandles[op.Handle]
	fs.mu.Unlock()

	op.BytesRead = 0
	for i := int(op.Offset); i < len(dirents); i++ {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dirents[i])
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *fileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	return nil
}

func (fs *fileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	p, ok := fs.pathOf(op.Inode)
	if !ok {
		return syscall.ENOENT
	}
	flags := os.O_RDONLY
	if fs.d.Writable() {
		flags = os.O_RDWR
	}
	fd, err := fs.d.Open(ctx, p, flags)
	if err != nil {
		return toErrno(err)
	}

	fs.mu.Lock()
	op.Handle = fs.nextHandle
	fs.nextHandle++
	fs.fileHandles[op.Handle] = fd
	fs.mu.Unlock()
	return nil
}

func (fs *fileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	fd, ok := fs.fileHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return syscall.ENOENT
	}

	off := op.Offset
	n, err := fs.d.Read(ctx, fd, op.Dst, &off)
	op.BytesRead = n
	if err != nil && err != io.EOF {
		return toErrno(err)
	}
	return nil
}

func (fs *fileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	fs.mu.Lock()
	fd, ok := fs.fileHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return syscall.ENOENT
	}

	if _, err := fs.d.Seek(fd, op.Offset, io.SeekStart); err != nil {
		return toErrno(err)
	}
	_, err := fs.d.Write(ctx, fd, op.Data)
	return toErrno(err)
}

func (fs *fileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (fs *fileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	fd, ok := fs.fileHandles[op.Handle]
	delete(fs.fileHandles, op.Handle)
	fs.mu.Unlock()
	if !ok {
		return nil
	}
	return fs.d.CloseFile(fd)
}
