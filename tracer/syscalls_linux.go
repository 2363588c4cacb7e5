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

// x86-64 syscall numbers for the handled syscall families.
// Lifted from the kernel's arch/x86/entry/syscalls/syscall_64.tbl;
// golang.org/x/sys/unix exposes these as SYS_* constants on other
// platforms it supports, but pins them to the host's GOARCH, so they are
// restated here as the fixed ABI the tracer speaks to its (x86-64) tracee
// regardless of the tracer's own build target.
const (
	sysRead        = 0
	sysWrite       = 1
	sysOpen        = 2
	sysClose       = 3
	sysStat        = 4
	sysFstat       = 5
	sysLstat       = 6
	sysLseek       = 8
	sysPread64     = 17
	sysPwrite64    = 18
	sysAccess      = 21
	sysDup         = 32
	sysDup2        = 33
	sysGetdents64  = 217
	sysRename      = 82
	sysMkdir       = 83
	sysRmdir       = 84
	sysUnlink      = 87
	sysSymlink     = 88
	sysReadlink    = 89
	sysLink        = 86
	sysFaccessat   = 269
	sysDup3        = 292
	sysMkdirat     = 258
	sysUnlinkat    = 263
	sysRenameat    = 264
	sysSymlinkat   = 266
	sysLinkat      = 265
	sysReadlinkat  = 267
	sysOpenat      = 257
	sysNewfstatat  = 262
	sysRenameat2   = 316
)

// handledSyscalls is the set syscallIsHandled consults; any syscall
// number not in this set is left to execute against the real kernel
// unmodified.
var handledSyscalls = map[uint64]bool{
	sysRead: true, sysWrite: true, sysOpen: true, sysClose: true,
	sysStat: true, sysFstat: true, sysLstat: true, sysLseek: true,
	sysPread64: true, sysPwrite64: true, sysAccess: true,
	sysDup: true, sysDup2: true, sysDup3: true,
	sysGetdents64: true, sysRename: true, sysMkdir: true, sysRmdir: true,
	sysUnlink: true, sysSymlink: true, sysReadlink: true, sysLink: true,
	sysFaccessat: true, sysMkdirat: true, sysUnlinkat: true,
	sysRenameat: true, sysRenameat2: true, sysSymlinkat: true,
	sysLinkat: true, sysReadlinkat: true, sysOpenat: true, sysNewfstatat: true,
}

func syscallIsHandled(nr uint64) bool {
	return handledSyscalls[nr]
}

// atFDCWD is the sentinel dirfd meaning "relative to the calling task's
// current working directory", per openat(2).
const atFDCWD = -100
