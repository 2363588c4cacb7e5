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
	"errors"

	"agentfs/ifs"
	"golang.org/x/sys/unix"
)

// errnoFor maps a domain error to its conventional errno. Unknown errors
// -- including raw host I/O failures bubbling up from a Passthrough
// mount -- fold to EIO.
func errnoFor(err error) unix.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ifs.ErrNotFound):
		return unix.ENOENT
	case errors.Is(err, ifs.ErrExists):
		return unix.EEXIST
	case errors.Is(err, ifs.ErrNotADirectory):
		return unix.ENOTDIR
	case errors.Is(err, ifs.ErrIsADirectory):
		return unix.EISDIR
	case errors.Is(err, ifs.ErrSymlinkLoop):
		return unix.ELOOP
	case errors.Is(err, ifs.ErrInvalidArgument):
		return unix.EINVAL
	case errors.Is(err, ifs.ErrCrossDevice):
		return unix.EXDEV
	case errors.Is(err, ifs.ErrBadHandle):
		return unix.EBADF
	case errors.Is(err, ifs.ErrNotEmpty):
		return unix.ENOTEMPTY
	case errors.Is(err, ifs.ErrStorageFailure):
		return unix.EIO
	default:
		return unix.EIO
	}
}

// negErrno returns the syscall return value for a failed virtual op: the
// negative of the errno, matching the x86-64 syscall ABI's error
// convention.
func negErrno(err error) int64 {
	return -int64(errnoFor(err))
}
