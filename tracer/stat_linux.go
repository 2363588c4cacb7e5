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

import "agentfs/ifs"

// statBufSize is sizeof(struct stat) in the glibc x86-64 ABI: the layout
// newfstatat/fstat/stat/lstat must fill on return.
const statBufSize = 144

// encodeStat builds a glibc-ABI struct stat for attr, with the device and
// padding fields zeroed (there is exactly one virtual device, so st_dev
// carries no information the guest can use), blksize fixed at 4096, and
// blocks derived from size, matching what a guest program checking st_blocks after a
// write would expect.
func encodeStat(attr ifs.Attr) []byte {
	buf := make([]byte, statBufSize)

	putLE64(buf[0:8], 0)                 // st_dev
	putLE64(buf[8:16], attr.Ino)          // st_ino
	putLE64(buf[16:24], uint64(attr.Nlink)) // st_nlink
	putLE32(buf[24:28], attr.Mode)        // st_mode
	putLE32(buf[28:32], attr.Uid)         // st_uid
	putLE32(buf[32:36], attr.Gid)         // st_gid
	putLE32(buf[36:40], 0)                // __pad0
	putLE64(buf[40:48], 0)                // st_rdev
	putLE64(buf[48:56], attr.Size)        // st_size
	putLE64(buf[56:64], 4096)             // st_blksize
	putLE64(buf[64:72], (attr.Size+511)/512) // st_blocks

	putLE64(buf[72:80], uint64(attr.Atime)) // st_atim.tv_sec
	putLE64(buf[80:88], 0)                  // st_atim.tv_nsec
	putLE64(buf[88:96], uint64(attr.Mtime))  // st_mtim.tv_sec
	putLE64(buf[96:104], 0)                  // st_mtim.tv_nsec
	putLE64(buf[104:112], uint64(attr.Ctime)) // st_ctim.tv_sec
	putLE64(buf[112:120], 0)                  // st_ctim.tv_nsec

	return buf
}
