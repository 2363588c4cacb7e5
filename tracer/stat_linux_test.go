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
	"testing"

	"agentfs/ifs"

	"github.com/stretchr/testify/require"
)

func TestEncodeStatLayout(t *testing.T) {
	attr := ifs.Attr{
		Ino: 42, Mode: 0o100644, Uid: 1000, Gid: 1000,
		Size: 4096, Atime: 111, Mtime: 222, Ctime: 333, Nlink: 1,
	}
	buf := encodeStat(attr)
	require.Len(t, buf, statBufSize)

	require.Equal(t, attr.Ino, leUint64(buf[8:16]))
	require.EqualValues(t, attr.Nlink, leUint64(buf[16:24]))
	require.EqualValues(t, attr.Size, leUint64(buf[48:56]))
	require.EqualValues(t, 8, leUint64(buf[64:72])) // (4096+511)/512
	require.EqualValues(t, attr.Atime, leUint64(buf[72:80]))
	require.EqualValues(t, attr.Mtime, leUint64(buf[88:96]))
	require.EqualValues(t, attr.Ctime, leUint64(buf[104:112]))
}
