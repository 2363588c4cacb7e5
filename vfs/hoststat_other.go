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

//go:build !linux

package vfs

import "os"

// hostStat has no portable equivalent outside Linux; Passthrough falls
// back to reporting nlink 1, which is always correct for non-hard-linked
// files.
func hostStat(fi os.FileInfo) (uint32, bool) {
	return 0, false
}
