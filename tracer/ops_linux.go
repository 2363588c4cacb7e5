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

package tracer

import (
	"context"
	"fmt"
	"io"
	"path"

	"agentfs/ifs"
	"agentfs/internal/logger"
	"agentfs/vfs"

	"golang.org/x/sys/unix"
)

// handleSyscallEntry is called at every syscall-entry stop. Syscalls the
// shim doesn't recognize, or that name a real (non-virtual) fd or dirfd,
// are left completely alone -- the kernel executes them exactly as if no
// tracer were attached. Handled calls are fully serviced here
// (including any guest-memory writes),
// then neutralized by setting orig_rax to an invalid syscall number so
// the kernel's own execution becomes a no-op; handleSyscallExit supplies
// the real return value once the kernel's (now harmless) syscall-exit
// stop arrives.
func (rt *Runtime) handleSyscallEntry(pid int) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return
	}
	nr := syscallNumber(&regs)
	if !syscallIsHandled(nr) {
		return
	}
	args := syscallArgs(&regs)

	if fd, ok := fdArgOf(nr, args); ok && !isVirtual(fd) {
		return
	}
	for _, dfd := range dirfdArgsOf(nr, args) {
		if dfd != atFDCWD && !isVirtual(dfd) {
			return
		}
	}

	ret := rt.dispatch(pid, nr, args)
	rt.tracer.syscallf(pid, fmt.Sprintf("syscall_%d", nr), fmt.Sprint(ret),
		"%#x, %#x, %#x, %#x", args[0], args[1], args[2], args[3])
	if ret < 0 {
		logger.For("tracer").DebugContext(context.Background(), "syscall failed",
			"pid", pid, "nr", nr, "errno", -ret)
	}

	rt.mu.Lock()
	rt.pending[pid] = ret
	rt.mu.Unlock()

	regs.Orig_rax = ^uint64(0)
	unix.PtraceSetRegs(pid, &regs)
}

func (rt *Runtime) handleSyscallExit(pid int) {
	rt.mu.Lock()
	ret, ok := rt.pending[pid]
	delete(rt.pending, pid)
	rt.mu.Unlock()
	if !ok {
		return
	}

	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return
	}
	setReturnValue(&regs, ret)
	unix.PtraceSetRegs(pid, &regs)
}

// fdArgOf reports the fd argument of syscalls that take exactly one,
// naming an already-open handle rather than a path.
func fdArgOf(nr uint64, args [6]uint64) (int, bool) {
	switch nr {
	case sysRead, sysWrite, sysPread64, sysPwrite64, sysLseek, sysClose, sysFstat, sysGetdents64, sysDup, sysDup2, sysDup3:
		return int(int32(args[0])), true
	}
	return 0, false
}

// dirfdArgsOf reports the dirfd argument register(s) of *at(2) syscalls,
// so the entry handler can defer to the kernel when the guest named a
// real directory fd this shim never opened.
func dirfdArgsOf(nr uint64, args [6]uint64) []int {
	switch nr {
	case sysOpenat, sysMkdirat, sysUnlinkat, sysSymlinkat, sysReadlinkat, sysFaccessat, sysNewfstatat:
		return []int{int(int32(args[0]))}
	case sysRenameat, sysRenameat2, sysLinkat:
		return []int{int(int32(args[0])), int(int32(args[2]))}
	}
	return nil
}

func (rt *Runtime) dispatch(pid int, nr uint64, args [6]uint64) int64 {
	ctx := context.Background()
	switch nr {
	case sysOpenat:
		return rt.doOpenat(ctx, pid, int(int32(args[0])), uintptr(args[1]), uint32(args[2]), uint32(args[3]))
	case sysOpen:
		return rt.doOpenat(ctx, pid, atFDCWD, uintptr(args[0]), uint32(args[1]), uint32(args[2]))
	case sysClose:
		return rt.doClose(pid, int(int32(args[0])))
	case sysRead:
		return rt.doRead(pid, int(int32(args[0])), uintptr(args[1]), args[2])
	case sysWrite:
		return rt.doWrite(pid, int(int32(args[0])), uintptr(args[1]), args[2])
	case sysPread64:
		return rt.doPread(pid, int(int32(args[0])), uintptr(args[1]), args[2], int64(args[3]))
	case sysPwrite64:
		return rt.doPwrite(pid, int(int32(args[0])), uintptr(args[1]), args[2], int64(args[3]))
	case sysLseek:
		return rt.doLseek(pid, int(int32(args[0])), int64(args[1]), int(args[2]))
	case sysStat:
		return rt.doStatPath(ctx, pid, atFDCWD, uintptr(args[0]), uintptr(args[1]), true)
	case sysLstat:
		return rt.doStatPath(ctx, pid, atFDCWD, uintptr(args[0]), uintptr(args[1]), false)
	case sysFstat:
		return rt.doFstat(ctx, pid, int(int32(args[0])), uintptr(args[1]))
	case sysNewfstatat:
		follow := uint32(args[3])&unix.AT_SYMLINK_NOFOLLOW == 0
		return rt.doStatPath(ctx, pid, int(int32(args[0])), uintptr(args[1]), uintptr(args[2]), follow)
	case sysAccess:
		return rt.doAccess(ctx, pid, atFDCWD, uintptr(args[0]))
	case sysFaccessat:
		return rt.doAccess(ctx, pid, int(int32(args[0])), uintptr(args[1]))
	case sysGetdents64:
		return rt.doGetdents64(ctx, pid, int(int32(args[0])), uintptr(args[1]), args[2])
	case sysMkdir:
		return rt.doMkdirat(ctx, pid, atFDCWD, uintptr(args[0]), uint32(args[1]))
	case sysMkdirat:
		return rt.doMkdirat(ctx, pid, int(int32(args[0])), uintptr(args[1]), uint32(args[2]))
	case sysRmdir:
		return rt.doRmdir(ctx, pid, atFDCWD, uintptr(args[0]))
	case sysUnlink:
		return rt.doUnlinkat(ctx, pid, atFDCWD, uintptr(args[0]))
	case sysUnlinkat:
		if uint32(args[2])&unix.AT_REMOVEDIR != 0 {
			return rt.doRmdir(ctx, pid, int(int32(args[0])), uintptr(args[1]))
		}
		return rt.doUnlinkat(ctx, pid, int(int32(args[0])), uintptr(args[1]))
	case sysRename:
		return rt.doRenameat(ctx, pid, atFDCWD, uintptr(args[0]), atFDCWD, uintptr(args[1]))
	case sysRenameat, sysRenameat2:
		return rt.doRenameat(ctx, pid, int(int32(args[0])), uintptr(args[1]), int(int32(args[2])), uintptr(args[3]))
	case sysSymlink:
		return rt.doSymlinkat(ctx, pid, uintptr(args[0]), atFDCWD, uintptr(args[1]))
	case sysSymlinkat:
		return rt.doSymlinkat(ctx, pid, uintptr(args[0]), int(int32(args[1])), uintptr(args[2]))
	case sysReadlink:
		return rt.doReadlinkat(ctx, pid, atFDCWD, uintptr(args[0]), uintptr(args[1]), args[2])
	case sysReadlinkat:
		return rt.doReadlinkat(ctx, pid, int(int32(args[0])), uintptr(args[1]), uintptr(args[2]), args[3])
	case sysLink:
		return rt.doLinkat(ctx, pid, atFDCWD, uintptr(args[0]), atFDCWD, uintptr(args[1]))
	case sysLinkat:
		return rt.doLinkat(ctx, pid, int(int32(args[0])), uintptr(args[1]), int(int32(args[2])), uintptr(args[3]))
	case sysDup:
		return rt.doDup(pid, int(int32(args[0])))
	case sysDup2, sysDup3:
		return rt.doDup2(pid, int(int32(args[0])), int(int32(args[1])))
	default:
		return negErrno(ifs.ErrInvalidArgument)
	}
}

// resolveGuestPath reads a NUL-terminated guest path at pathAddr and
// resolves it against dirfd (atFDCWD, a virtual fd, or rejected if a
// real one slipped through) to a guest-absolute path, then looks that
// path up in the Mount Table.
func (rt *Runtime) resolveGuestPath(pid, dirfd int, pathAddr uintptr) (vfs.FS, string, string, error) {
	raw, err := readGuestCString(pid, pathAddr)
	if err != nil {
		return nil, "", "", err
	}

	var base string
	switch {
	case path.IsAbs(raw):
		base = "/"
	case dirfd == atFDCWD:
		base = rt.taskCwd(pid)
	case isVirtual(dirfd):
		of, ok := rt.taskFDs(pid).lookup(dirfd)
		if !ok {
			return nil, "", "", ifs.ErrBadHandle
		}
		base = of.path
	default:
		return nil, "", "", ifs.ErrInvalidArgument
	}

	full := raw
	if !path.IsAbs(raw) {
		full = path.Join(base, raw)
	}
	full = path.Clean("/" + full)

	fs, rel, err := rt.mounts.Lookup(full)
	if err != nil {
		return nil, "", "", err
	}
	return fs, rel, full, nil
}

func translateOpenFlags(raw uint32) vfs.OpenFlags {
	var f vfs.OpenFlags
	switch raw & uint32(unix.O_ACCMODE) {
	case unix.O_WRONLY:
		f |= vfs.OpenWriteOnly
	case unix.O_RDWR:
		f |= vfs.OpenReadWrite
	default:
		f |= vfs.OpenReadOnly
	}
	if raw&unix.O_CREAT != 0 {
		f |= vfs.OpenCreate
	}
	if raw&unix.O_TRUNC != 0 {
		f |= vfs.OpenTruncate
	}
	if raw&unix.O_APPEND != 0 {
		f |= vfs.OpenAppend
	}
	if raw&unix.O_EXCL != 0 {
		f |= vfs.OpenExclusive
	}
	if raw&unix.O_DIRECTORY != 0 {
		f |= vfs.OpenDirectory
	}
	return f
}

func (rt *Runtime) doOpenat(ctx context.Context, pid int, dirfd int, pathAddr uintptr, rawFlags uint32, mode uint32) int64 {
	fs, rel, full, err := rt.resolveGuestPath(pid, dirfd, pathAddr)
	if err != nil {
		return negErrno(err)
	}

	flags := translateOpenFlags(rawFlags)
	h, err := fs.Open(ctx, rel, flags, mode)
	if err != nil {
		return negErrno(err)
	}

	of := &openFile{handle: h, path: full, flags: flags, closeOnExec: rawFlags&unix.O_CLOEXEC != 0}
	if flags&vfs.OpenDirectory != 0 {
		entries, err := fs.Readdir(ctx, rel)
		if err != nil {
			h.Close()
			return negErrno(err)
		}
		selfAttr, err := fs.Stat(ctx, rel)
		if err != nil {
			h.Close()
			return negErrno(err)
		}
		parentFull := path.Dir(full)
		parentIno := selfAttr.Ino
		if parentFull != full {
			if pfs, prel, perr := rt.mounts.Lookup(parentFull); perr == nil {
				if pattr, err := pfs.Stat(ctx, prel); err == nil {
					parentIno = pattr.Ino
				}
			}
		}
		of.dirEntries = entries
		of.selfIno = selfAttr.Ino
		of.parentIno = parentIno
	}

	fd := rt.taskFDs(pid).allocate(of)
	return int64(fd)
}

func (rt *Runtime) doClose(pid, fd int) int64 {
	if err := rt.taskFDs(pid).close(fd); err != nil {
		return negErrno(err)
	}
	return 0
}

func (rt *Runtime) doRead(pid, fd int, bufAddr uintptr, count uint64) int64 {
	of, ok := rt.taskFDs(pid).lookup(fd)
	if !ok {
		return negErrno(ifs.ErrBadHandle)
	}
	buf := make([]byte, count)
	n, err := of.handle.Read(buf)
	if err != nil && err != io.EOF {
		return negErrno(err)
	}
	if n > 0 {
		if werr := writeGuestBytes(pid, bufAddr, buf[:n]); werr != nil {
			return negErrno(ErrFault)
		}
	}
	return int64(n)
}

func (rt *Runtime) doWrite(pid, fd int, bufAddr uintptr, count uint64) int64 {
	of, ok := rt.taskFDs(pid).lookup(fd)
	if !ok {
		return negErrno(ifs.ErrBadHandle)
	}
	data, err := readGuestBytes(pid, bufAddr, int(count))
	if err != nil {
		return negErrno(ErrFault)
	}
	n, err := of.handle.Write(data)
	if err != nil {
		return negErrno(err)
	}
	return int64(n)
}

func (rt *Runtime) doPread(pid, fd int, bufAddr uintptr, count uint64, offset int64) int64 {
	of, ok := rt.taskFDs(pid).lookup(fd)
	if !ok {
		return negErrno(ifs.ErrBadHandle)
	}
	buf := make([]byte, count)
	n, err := of.handle.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return negErrno(err)
	}
	if n > 0 {
		if werr := writeGuestBytes(pid, bufAddr, buf[:n]); werr != nil {
			return negErrno(ErrFault)
		}
	}
	return int64(n)
}

func (rt *Runtime) doPwrite(pid, fd int, bufAddr uintptr, count uint64, offset int64) int64 {
	of, ok := rt.taskFDs(pid).lookup(fd)
	if !ok {
		return negErrno(ifs.ErrBadHandle)
	}
	data, err := readGuestBytes(pid, bufAddr, int(count))
	if err != nil {
		return negErrno(ErrFault)
	}
	n, err := of.handle.WriteAt(data, offset)
	if err != nil {
		return negErrno(err)
	}
	return int64(n)
}

func (rt *Runtime) doLseek(pid, fd int, offset int64, whence int) int64 {
	of, ok := rt.taskFDs(pid).lookup(fd)
	if !ok {
		return negErrno(ifs.ErrBadHandle)
	}
	pos, err := of.handle.Seek(offset, whence)
	if err != nil {
		return negErrno(err)
	}
	return pos
}

func (rt *Runtime) doStatPath(ctx context.Context, pid int, dirfd int, pathAddr, statAddr uintptr, follow bool) int64 {
	fs, rel, _, err := rt.resolveGuestPath(pid, dirfd, pathAddr)
	if err != nil {
		return negErrno(err)
	}
	var attr ifs.Attr
	if follow {
		attr, err = fs.Stat(ctx, rel)
	} else {
		attr, err = fs.Lstat(ctx, rel)
	}
	if err != nil {
		return negErrno(err)
	}
	if werr := writeGuestBytes(pid, statAddr, encodeStat(attr)); werr != nil {
		return negErrno(ErrFault)
	}
	return 0
}

func (rt *Runtime) doFstat(ctx context.Context, pid, fd int, statAddr uintptr) int64 {
	of, ok := rt.taskFDs(pid).lookup(fd)
	if !ok {
		return negErrno(ifs.ErrBadHandle)
	}
	attr, err := of.handle.Stat(ctx)
	if err != nil {
		return negErrno(err)
	}
	if werr := writeGuestBytes(pid, statAddr, encodeStat(attr)); werr != nil {
		return negErrno(ErrFault)
	}
	return 0
}

// doAccess only checks existence: permission bits are not enforced
// anywhere in this filesystem, so access(2) succeeds whenever the path
// resolves.
func (rt *Runtime) doAccess(ctx context.Context, pid int, dirfd int, pathAddr uintptr) int64 {
	fs, rel, _, err := rt.resolveGuestPath(pid, dirfd, pathAddr)
	if err != nil {
		return negErrno(err)
	}
	if _, err := fs.Stat(ctx, rel); err != nil {
		return negErrno(err)
	}
	return 0
}

func (rt *Runtime) doGetdents64(ctx context.Context, pid, fd int, bufAddr uintptr, count uint64) int64 {
	of, ok := rt.taskFDs(pid).lookup(fd)
	if !ok {
		return negErrno(ifs.ErrBadHandle)
	}

	data, next, _ := encodeGetdents64(of.selfIno, of.parentIno, of.dirEntries, of.dirCookie, int(count))
	of.dirCookie = next

	if len(data) == 0 {
		return 0
	}
	if werr := writeGuestBytes(pid, bufAddr, data); werr != nil {
		return negErrno(ErrFault)
	}
	return int64(len(data))
}

func (rt *Runtime) doMkdirat(ctx context.Context, pid int, dirfd int, pathAddr uintptr, mode uint32) int64 {
	fs, rel, _, err := rt.resolveGuestPath(pid, dirfd, pathAddr)
	if err != nil {
		return negErrno(err)
	}
	if err := fs.Mkdir(ctx, rel, mode); err != nil {
		return negErrno(err)
	}
	return 0
}

func (rt *Runtime) doRmdir(ctx context.Context, pid int, dirfd int, pathAddr uintptr) int64 {
	fs, rel, _, err := rt.resolveGuestPath(pid, dirfd, pathAddr)
	if err != nil {
		return negErrno(err)
	}
	if err := fs.Rmdir(ctx, rel); err != nil {
		return negErrno(err)
	}
	return 0
}

func (rt *Runtime) doUnlinkat(ctx context.Context, pid int, dirfd int, pathAddr uintptr) int64 {
	fs, rel, _, err := rt.resolveGuestPath(pid, dirfd, pathAddr)
	if err != nil {
		return negErrno(err)
	}
	if err := fs.Unlink(ctx, rel); err != nil {
		return negErrno(err)
	}
	return 0
}

// doRenameat requires both paths to resolve to the same backend: a
// rename across mounts has no atomic implementation and is reported as
// EXDEV, the same errno a guest sees crossing real filesystem devices.
func (rt *Runtime) doRenameat(ctx context.Context, pid int, oldDirfd int, oldAddr uintptr, newDirfd int, newAddr uintptr) int64 {
	oldFS, oldRel, _, err := rt.resolveGuestPath(pid, oldDirfd, oldAddr)
	if err != nil {
		return negErrno(err)
	}
	newFS, newRel, _, err := rt.resolveGuestPath(pid, newDirfd, newAddr)
	if err != nil {
		return negErrno(err)
	}
	if oldFS != newFS {
		return negErrno(ifs.ErrCrossDevice)
	}
	if err := oldFS.Rename(ctx, oldRel, newRel); err != nil {
		return negErrno(err)
	}
	return 0
}

func (rt *Runtime) doSymlinkat(ctx context.Context, pid int, targetAddr uintptr, dirfd int, linkAddr uintptr) int64 {
	target, err := readGuestCString(pid, targetAddr)
	if err != nil {
		return negErrno(ErrFault)
	}
	fs, rel, _, err := rt.resolveGuestPath(pid, dirfd, linkAddr)
	if err != nil {
		return negErrno(err)
	}
	if err := fs.Symlink(ctx, target, rel); err != nil {
		return negErrno(err)
	}
	return 0
}

func (rt *Runtime) doReadlinkat(ctx context.Context, pid int, dirfd int, pathAddr uintptr, bufAddr uintptr, count uint64) int64 {
	fs, rel, _, err := rt.resolveGuestPath(pid, dirfd, pathAddr)
	if err != nil {
		return negErrno(err)
	}
	target, err := fs.Readlink(ctx, rel)
	if err != nil {
		return negErrno(err)
	}
	out := []byte(target)
	if uint64(len(out)) > count {
		out = out[:count]
	}
	if werr := writeGuestBytes(pid, bufAddr, out); werr != nil {
		return negErrno(ErrFault)
	}
	return int64(len(out))
}

// doLinkat requires both paths on the same backend for the same reason
// as rename: a hard link spans a single inode table.
func (rt *Runtime) doLinkat(ctx context.Context, pid int, oldDirfd int, oldAddr uintptr, newDirfd int, newAddr uintptr) int64 {
	oldFS, oldRel, _, err := rt.resolveGuestPath(pid, oldDirfd, oldAddr)
	if err != nil {
		return negErrno(err)
	}
	newFS, newRel, _, err := rt.resolveGuestPath(pid, newDirfd, newAddr)
	if err != nil {
		return negErrno(err)
	}
	if oldFS != newFS {
		return negErrno(ifs.ErrCrossDevice)
	}
	if err := oldFS.Link(ctx, oldRel, newRel); err != nil {
		return negErrno(err)
	}
	return 0
}

func (rt *Runtime) doDup(pid, fd int) int64 {
	newfd, err := rt.taskFDs(pid).dup(fd)
	if err != nil {
		return negErrno(err)
	}
	return int64(newfd)
}

func (rt *Runtime) doDup2(pid, fd, newfd int) int64 {
	if fd == newfd {
		if _, ok := rt.taskFDs(pid).lookup(fd); !ok {
			return negErrno(ifs.ErrBadHandle)
		}
		return int64(newfd)
	}
	if err := rt.taskFDs(pid).dupTo(fd, newfd); err != nil {
		return negErrno(err)
	}
	return int64(newfd)
}
