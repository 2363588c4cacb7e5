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
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openProcMem opens the tracee's /proc/<pid>/mem for random-access
// reads and writes. The tracer must be the ptracing parent for this to
// succeed without the tracee's own cooperation.
func openProcMem(pid int) (*os.File, error) {
	return os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDWR, 0)
}

// ErrFault is returned when a guest pointer cannot be read or written.
// Guest pointers are untrusted input; handlers return EFAULT for these
// rather than aborting the tracer.
var ErrFault = errors.New("tracer: unreadable or unwritable guest memory")

const maxPathLen = 4096

// readGuestBytes copies n bytes from the tracee's address space starting
// at addr. Reads proceed through /proc/<pid>/mem, which -- unlike
// PTRACE_PEEKTEXT/PEEKDATA -- supports arbitrarily sized reads in one
// syscall and doesn't require alignment.
func readGuestBytes(pid int, addr uintptr, n int) ([]byte, error) {
	if n < 0 || n > 64<<20 {
		return nil, ErrFault
	}
	mem, err := openProcMem(pid)
	if err != nil {
		return nil, ErrFault
	}
	defer mem.Close()

	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	read, err := mem.ReadAt(buf, int64(addr))
	if err != nil && read == 0 {
		return nil, ErrFault
	}
	return buf[:read], nil
}

// writeGuestBytes copies data into the tracee's address space at addr.
func writeGuestBytes(pid int, addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	mem, err := openProcMem(pid)
	if err != nil {
		return ErrFault
	}
	defer mem.Close()

	if _, err := mem.WriteAt(data, int64(addr)); err != nil {
		return ErrFault
	}
	return nil
}

// readGuestCString reads a NUL-terminated string from the tracee at addr,
// bounded by maxPathLen (plenty for any POSIX path).
func readGuestCString(pid int, addr uintptr) (string, error) {
	if addr == 0 {
		return "", ErrFault
	}

	const chunkSize = 256
	var out []byte
	for offset := 0; offset < maxPathLen; offset += chunkSize {
		chunk, err := readGuestBytes(pid, addr+uintptr(offset), chunkSize)
		if err != nil {
			if offset == 0 {
				return "", err
			}
			break
		}
		if idx := indexByte(chunk, 0); idx >= 0 {
			out = append(out, chunk[:idx]...)
			return string(out), nil
		}
		out = append(out, chunk...)
	}
	return "", ErrFault
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// syscallArgs extracts the six syscall argument registers in the
// System V AMD64 calling convention order the kernel uses for syscalls:
// rdi, rsi, rdx, r10, r8, r9.
func syscallArgs(regs *unix.PtraceRegs) [6]uint64 {
	return [6]uint64{regs.Rdi, regs.Rsi, regs.Rdx, regs.R10, regs.R8, regs.R9}
}

// syscallNumber returns the syscall number the kernel is about to
// execute (or just executed), stored in orig_rax across both the entry
// and exit stop of a traced syscall.
func syscallNumber(regs *unix.PtraceRegs) uint64 {
	return regs.Orig_rax
}

// setReturnValue rewrites the tracee's rax to ret, the value userspace
// will observe as the syscall's return.
func setReturnValue(regs *unix.PtraceRegs, ret int64) {
	regs.Rax = uint64(ret)
}

// putLE64, putLE32 and putLE16 are small helpers for building kernel-ABI structs
// (stat buffers, dirents) in host byte order, which on every
// architecture Linux runs Go on is little-endian.
func putLE64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func putLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putLE16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
