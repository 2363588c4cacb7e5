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
	"testing"

	"agentfs/ifs"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestErrnoForKnownErrors(t *testing.T) {
	cases := []struct {
		err  error
		want unix.Errno
	}{
		{ifs.ErrNotFound, unix.ENOENT},
		{ifs.ErrExists, unix.EEXIST},
		{ifs.ErrNotADirectory, unix.ENOTDIR},
		{ifs.ErrIsADirectory, unix.EISDIR},
		{ifs.ErrSymlinkLoop, unix.ELOOP},
		{ifs.ErrInvalidArgument, unix.EINVAL},
		{ifs.ErrCrossDevice, unix.EXDEV},
		{ifs.ErrBadHandle, unix.EBADF},
		{ifs.ErrNotEmpty, unix.ENOTEMPTY},
		{ifs.ErrStorageFailure, unix.EIO},
	}
	for _, c := range cases {
		require.Equal(t, c.want, errnoFor(c.err))
	}
}

func TestErrnoForUnknownErrorFoldsToEIO(t *testing.T) {
	require.Equal(t, unix.EIO, errnoFor(errors.New("something host-specific")))
}

func TestNegErrnoIsNegative(t *testing.T) {
	require.EqualValues(t, -int64(unix.ENOENT), negErrno(ifs.ErrNotFound))
}
