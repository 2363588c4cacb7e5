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

package vfs

import (
	"context"
	"io"
	"sync"

	"agentfs/ifs"
)

// IFSBacked delegates every capability to an ifs.Filesystem.
type IFSBacked struct {
	fs *ifs.Filesystem
}

func NewIFSBacked(fs *ifs.Filesystem) *IFSBacked {
	return &IFSBacked{fs: fs}
}

func (v *IFSBacked) Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (Handle, error) {
	if flags&OpenDirectory != 0 {
		entries, err := v.fs.Readdir(ctx, path)
		if err != nil {
			return nil, err
		}
		return &ifsDirHandle{entries: entries}, nil
	}

	_, statErr := v.fs.Stat(ctx, path)
	switch {
	case statErr == nil:
		if flags&OpenExclusive != 0 && flags&OpenCreate != 0 {
			return nil, ifs.ErrExists
		}
		if flags&OpenTruncate != 0 {
			if err := v.fs.Truncate(ctx, path, 0); err != nil {
				return nil, err
			}
		}
	case statErr == ifs.ErrNotFound:
		if flags&OpenCreate == 0 {
			return nil, statErr
		}
		if err := v.fs.Write(ctx, path, nil); err != nil {
			return nil, err
		}
	default:
		return nil, statErr
	}

	var pos int64
	if flags&OpenAppend != 0 {
		attr, err := v.fs.Stat(ctx, path)
		if err != nil {
			return nil, err
		}
		pos = int64(attr.Size)
	}

	return &ifsFileHandle{fs: v.fs, path: path, flags: flags, pos: pos}, nil
}

func (v *IFSBacked) Stat(ctx context.Context, path string) (ifs.Attr, error) {
	return v.fs.Stat(ctx, path)
}

func (v *IFSBacked) Lstat(ctx context.Context, path string) (ifs.Attr, error) {
	return v.fs.Lstat(ctx, path)
}

func (v *IFSBacked) Readdir(ctx context.Context, path string) ([]ifs.DirEntry, error) {
	return v.fs.Readdir(ctx, path)
}

func (v *IFSBacked) Mkdir(ctx context.Context, path string, mode uint32) error {
	return v.fs.Mkdir(ctx, path, mode)
}

func (v *IFSBacked) Rmdir(ctx context.Context, path string) error {
	return v.fs.Rmdir(ctx, path)
}

func (v *IFSBacked) Unlink(ctx context.Context, path string) error {
	return v.fs.Unlink(ctx, path)
}

func (v *IFSBacked) Rename(ctx context.Context, oldpath, newpath string) error {
	return v.fs.Rename(ctx, oldpath, newpath)
}

func (v *IFSBacked) Symlink(ctx context.Context, target, path string) error {
	return v.fs.Symlink(ctx, target, path)
}

func (v *IFSBacked) Readlink(ctx context.Context, path string) (string, error) {
	return v.fs.Readlink(ctx, path)
}

func (v *IFSBacked) Link(ctx context.Context, oldpath, newpath string) error {
	return v.fs.Link(ctx, oldpath, newpath)
}

// ifsFileHandle is a Handle whose contents are copy-on-open: the full
// file is read into memory when first touched and written back as a
// whole on each Write via ifs.Write, matching ifs's full-replace
// contract. This keeps the handle's read/write/seek state entirely
// local -- readers never share state across handles.
type ifsFileHandle struct {
	fs    *ifs.Filesystem
	path  string
	flags OpenFlags

	mu     sync.Mutex
	pos    int64
	loaded bool
	data   []byte
	closed bool
}

func (h *ifsFileHandle) load(ctx context.Context) error {
	if h.loaded {
		return nil
	}
	data, err := h.fs.Read(ctx, h.path)
	if err != nil {
		return err
	}
	h.data = data
	h.loaded = true
	return nil
}

func (h *ifsFileHandle) Read(p []byte) (int, error) {
	return h.ReadAt(p, h.pos0())
}

func (h *ifsFileHandle) pos0() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

func (h *ifsFileHandle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ifs.ErrBadHandle
	}
	if !h.flags.Readable() {
		return 0, ifs.ErrInvalidArgument
	}
	if err := h.load(context.Background()); err != nil {
		return 0, err
	}
	if off >= int64(len(h.data)) {
		h.pos = off
		return 0, io.EOF
	}
	n := copy(p, h.data[off:])
	h.pos = off + int64(n)
	var err error
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (h *ifsFileHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	off := h.pos
	h.mu.Unlock()
	n, err := h.WriteAt(p, off)
	if err == nil {
		h.mu.Lock()
		h.pos = off + int64(n)
		h.mu.Unlock()
	}
	return n, err
}

func (h *ifsFileHandle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ifs.ErrBadHandle
	}
	if !h.flags.Writable() {
		return 0, ifs.ErrInvalidArgument
	}
	if err := h.load(context.Background()); err != nil {
		return 0, err
	}

	newLen := int(off) + len(p)
	if newLen > len(h.data) {
		grown := make([]byte, newLen)
		copy(grown, h.data)
		h.data = grown
	}
	n := copy(h.data[off:], p)

	if err := h.fs.Write(context.Background(), h.path, h.data); err != nil {
		return 0, err
	}
	return n, nil
}

func (h *ifsFileHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ifs.ErrBadHandle
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		if err := h.load(context.Background()); err != nil {
			return 0, err
		}
		base = int64(len(h.data))
	default:
		return 0, ifs.ErrInvalidArgument
	}

	h.pos = base + offset
	return h.pos, nil
}

func (h *ifsFileHandle) Stat(ctx context.Context) (ifs.Attr, error) {
	return h.fs.Stat(ctx, h.path)
}

func (h *ifsFileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ifs.ErrBadHandle
	}
	h.closed = true
	return nil
}

// ifsDirHandle is a read-only Handle over a directory's entries, returned
// by Open for OpenDirectory. The tracer's getdents64 handler does not read
// from it; it uses the entry list stored on the fd at open time.
type ifsDirHandle struct {
	mu      sync.Mutex
	entries []ifs.DirEntry
	pos     int
	closed  bool
}

func (h *ifsDirHandle) Entries() []ifs.DirEntry {
	return h.entries
}

func (h *ifsDirHandle) Read([]byte) (int, error)          { return 0, ifs.ErrIsADirectory }
func (h *ifsDirHandle) Write([]byte) (int, error)          { return 0, ifs.ErrIsADirectory }
func (h *ifsDirHandle) ReadAt([]byte, int64) (int, error)  { return 0, ifs.ErrIsADirectory }
func (h *ifsDirHandle) WriteAt([]byte, int64) (int, error) { return 0, ifs.ErrIsADirectory }

func (h *ifsDirHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if whence == io.SeekStart {
		h.pos = int(offset)
	}
	return int64(h.pos), nil
}

func (h *ifsDirHandle) Stat(ctx context.Context) (ifs.Attr, error) {
	return ifs.Attr{}, ifs.ErrIsADirectory
}

func (h *ifsDirHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ifs.ErrBadHandle
	}
	h.closed = true
	return nil
}
