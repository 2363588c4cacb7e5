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

package ifs

import "agentfs/store"

// FileType is the small, kernel-visible kind of an inode: this
// filesystem only ever persists these three.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
)

// TypeFromMode extracts the FileType encoded in the top bits of a POSIX
// mode value.
func TypeFromMode(mode uint32) FileType {
	switch mode & store.ModeTypeMask {
	case store.ModeDirectory:
		return TypeDirectory
	case store.ModeSymlink:
		return TypeSymlink
	case store.ModeRegular:
		return TypeRegular
	default:
		return TypeUnknown
	}
}

// Attr is the metadata record returned by Stat/Lstat: ino, POSIX mode,
// ownership, size, the three POSIX timestamps, and a derived link count
// -- nlink always equals the dentry count for the inode.
type Attr struct {
	Ino   uint64
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Size  uint64
	Atime int64
	Mtime int64
	Ctime int64
	Nlink uint32
}

func (a Attr) Type() FileType {
	return TypeFromMode(a.Mode)
}

func (a Attr) IsDir() bool  { return a.Type() == TypeDirectory }
func (a Attr) IsLink() bool { return a.Type() == TypeSymlink }
func (a Attr) IsFile() bool { return a.Type() == TypeRegular }

// DirEntry is one name returned from Readdir, with enough type information
// for the tracer to fill in a getdents64 record's d_type field without a
// second round trip to stat each child.
type DirEntry struct {
	Name string
	Ino  uint64
	Type FileType
}
