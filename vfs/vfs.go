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

// Package vfs defines the dispatch capability shared by every mountable
// backend: an interface implemented by both a host-passthrough backend
// and an inode-filesystem-backed one, composed at different path
// prefixes by a Mount Table.
package vfs

import (
	"context"
	"io"

	"agentfs/ifs"
)

// OpenFlags mirrors the subset of POSIX open(2) flags the tracer
// translates from guest syscall arguments.
type OpenFlags int

const (
	OpenReadOnly OpenFlags = 1 << iota
	OpenWriteOnly
	OpenReadWrite
	OpenCreate
	OpenTruncate
	OpenAppend
	OpenExclusive
	OpenDirectory
)

func (f OpenFlags) Readable() bool {
	return f&OpenReadOnly != 0 || f&OpenReadWrite != 0
}

func (f OpenFlags) Writable() bool {
	return f&OpenWriteOnly != 0 || f&OpenReadWrite != 0
}

// Handle is an opened file or directory. Handles encapsulate position and
// buffered content; two handles never share state. Fds created by dup
// refer to the same Handle and therefore share its position.
type Handle interface {
	io.ReaderAt
	io.WriterAt
	// Read reads up to len(p) bytes starting at the handle's current
	// position, advancing it.
	Read(p []byte) (n int, err error)
	// Write writes p at the handle's current position, advancing it.
	Write(p []byte) (n int, err error)
	// Seek repositions the handle, following io.Seeker semantics.
	Seek(offset int64, whence int) (int64, error)
	// Stat returns the attributes of the file underlying this handle.
	Stat(ctx context.Context) (ifs.Attr, error)
	Close() error
}

// FS is the capability set a VFS backend must implement. Paths passed in
// are always relative to the backend's own root -- the Mount Table
// strips the matched prefix before calling in.
type FS interface {
	Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (Handle, error)
	Stat(ctx context.Context, path string) (ifs.Attr, error)
	Lstat(ctx context.Context, path string) (ifs.Attr, error)
	Readdir(ctx context.Context, path string) ([]ifs.DirEntry, error)
	Mkdir(ctx context.Context, path string, mode uint32) error
	Rmdir(ctx context.Context, path string) error
	Unlink(ctx context.Context, path string) error
	Rename(ctx context.Context, oldpath, newpath string) error
	Symlink(ctx context.Context, target, path string) error
	Readlink(ctx context.Context, path string) (string, error)
	Link(ctx context.Context, oldpath, newpath string) error
}
