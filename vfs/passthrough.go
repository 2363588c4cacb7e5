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
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"agentfs/ifs"
)

// Passthrough maps every call onto the host filesystem under a fixed
// root, joining the guest-visible path onto that root.
type Passthrough struct {
	Root string
}

func NewPassthrough(root string) *Passthrough {
	return &Passthrough{Root: root}
}

func (p *Passthrough) hostPath(path string) string {
	return filepath.Join(p.Root, filepath.Clean("/"+path))
}

func translateHostErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return ifs.ErrNotFound
	case errors.Is(err, fs.ErrExist):
		return ifs.ErrExists
	case errors.Is(err, fs.ErrInvalid):
		return ifs.ErrInvalidArgument
	default:
		return ifs.ErrStorageFailure
	}
}

func attrFromFileInfo(fi os.FileInfo) ifs.Attr {
	mode := uint32(fi.Mode().Perm())
	switch {
	case fi.IsDir():
		mode |= 0o040000
	case fi.Mode()&os.ModeSymlink != 0:
		mode |= 0o120000
	default:
		mode |= 0o100000
	}

	nlink := uint32(1)
	if st, ok := hostStat(fi); ok {
		nlink = st
	}

	return ifs.Attr{
		Mode:  mode,
		Size:  uint64(fi.Size()),
		Mtime: fi.ModTime().Unix(),
		Ctime: fi.ModTime().Unix(),
		Atime: fi.ModTime().Unix(),
		Nlink: nlink,
	}
}

func (p *Passthrough) Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (Handle, error) {
	hostPath := p.hostPath(path)

	if flags&OpenDirectory != 0 {
		entries, err := os.ReadDir(hostPath)
		if err != nil {
			return nil, translateHostErr(err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		var out []ifs.DirEntry
		for _, e := range entries {
			t := ifs.TypeRegular
			if e.IsDir() {
				t = ifs.TypeDirectory
			} else if e.Type()&os.ModeSymlink != 0 {
				t = ifs.TypeSymlink
			}
			out = append(out, ifs.DirEntry{Name: e.Name(), Type: t})
		}
		return &ifsDirHandle{entries: out}, nil
	}

	var osFlags int
	switch {
	case flags.Readable() && flags.Writable():
		osFlags = os.O_RDWR
	case flags.Writable():
		osFlags = os.O_WRONLY
	default:
		osFlags = os.O_RDONLY
	}
	if flags&OpenCreate != 0 {
		osFlags |= os.O_CREATE
	}
	if flags&OpenTruncate != 0 {
		osFlags |= os.O_TRUNC
	}
	if flags&OpenExclusive != 0 {
		osFlags |= os.O_EXCL
	}
	if flags&OpenAppend != 0 {
		osFlags |= os.O_APPEND
	}

	f, err := os.OpenFile(hostPath, osFlags, os.FileMode(mode&0o777))
	if err != nil {
		return nil, translateHostErr(err)
	}
	return &passthroughHandle{f: f}, nil
}

func (p *Passthrough) Stat(ctx context.Context, path string) (ifs.Attr, error) {
	fi, err := os.Stat(p.hostPath(path))
	if err != nil {
		return ifs.Attr{}, translateHostErr(err)
	}
	return attrFromFileInfo(fi), nil
}

func (p *Passthrough) Lstat(ctx context.Context, path string) (ifs.Attr, error) {
	fi, err := os.Lstat(p.hostPath(path))
	if err != nil {
		return ifs.Attr{}, translateHostErr(err)
	}
	return attrFromFileInfo(fi), nil
}

func (p *Passthrough) Readdir(ctx context.Context, path string) ([]ifs.DirEntry, error) {
	entries, err := os.ReadDir(p.hostPath(path))
	if err != nil {
		return nil, translateHostErr(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []ifs.DirEntry
	for _, e := range entries {
		t := ifs.TypeRegular
		if e.IsDir() {
			t = ifs.TypeDirectory
		} else if e.Type()&os.ModeSymlink != 0 {
			t = ifs.TypeSymlink
		}
		out = append(out, ifs.DirEntry{Name: e.Name(), Type: t})
	}
	return out, nil
}

func (p *Passthrough) Mkdir(ctx context.Context, path string, mode uint32) error {
	return translateHostErr(os.Mkdir(p.hostPath(path), os.FileMode(mode&0o777)))
}

func (p *Passthrough) Rmdir(ctx context.Context, path string) error {
	return translateHostErr(os.Remove(p.hostPath(path)))
}

func (p *Passthrough) Unlink(ctx context.Context, path string) error {
	return translateHostErr(os.Remove(p.hostPath(path)))
}

func (p *Passthrough) Rename(ctx context.Context, oldpath, newpath string) error {
	return translateHostErr(os.Rename(p.hostPath(oldpath), p.hostPath(newpath)))
}

func (p *Passthrough) Symlink(ctx context.Context, target, path string) error {
	return translateHostErr(os.Symlink(target, p.hostPath(path)))
}

func (p *Passthrough) Readlink(ctx context.Context, path string) (string, error) {
	target, err := os.Readlink(p.hostPath(path))
	return target, translateHostErr(err)
}

func (p *Passthrough) Link(ctx context.Context, oldpath, newpath string) error {
	return translateHostErr(os.Link(p.hostPath(oldpath), p.hostPath(newpath)))
}

// passthroughHandle adapts an *os.File to the Handle interface.
type passthroughHandle struct {
	f *os.File
}

func (h *passthroughHandle) Read(p []byte) (int, error)         { return h.f.Read(p) }
func (h *passthroughHandle) Write(p []byte) (int, error)        { return h.f.Write(p) }
func (h *passthroughHandle) ReadAt(p []byte, off int64) (int, error)  { return h.f.ReadAt(p, off) }
func (h *passthroughHandle) WriteAt(p []byte, off int64) (int, error) { return h.f.WriteAt(p, off) }
func (h *passthroughHandle) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}

func (h *passthroughHandle) Stat(ctx context.Context) (ifs.Attr, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return ifs.Attr{}, translateHostErr(err)
	}
	return attrFromFileInfo(fi), nil
}

func (h *passthroughHandle) Close() error {
	return translateHostErr(h.f.Close())
}
