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
	"fmt"
	"path"
	"sort"
	"strings"

	"agentfs/ifs"
)

// Mount is one (prefix, backend) pair in a MountTable.
type Mount struct {
	Prefix string
	FS     FS
}

// MountTable is an ordered, immutable list of mounts. Lookup returns the
// longest-prefix match for a path, along with the remainder after the
// prefix.
type MountTable struct {
	mounts []Mount
}

func normalizePrefix(prefix string) string {
	if prefix == "/" {
		return "/"
	}
	return strings.TrimSuffix(path.Clean("/"+prefix), "/")
}

// NewMountTable validates that no two prefixes overlap by parent/child
// (e.g. "/a" and "/a/b" are rejected) and returns an immutable table
// ordered longest-prefix-first for fast lookup.
func NewMountTable(mounts []Mount) (*MountTable, error) {
	normalized := make([]Mount, len(mounts))
	for i, m := range mounts {
		normalized[i] = Mount{Prefix: normalizePrefix(m.Prefix), FS: m.FS}
	}

	for i := range normalized {
		for j := range normalized {
			if i == j {
				continue
			}
			a, b := normalized[i].Prefix, normalized[j].Prefix
			if a == b {
				return nil, fmt.Errorf("vfs: duplicate mount prefix %q", a)
			}
			if isAncestorPrefix(a, b) {
				return nil, fmt.Errorf("vfs: overlapping mount prefixes %q and %q", a, b)
			}
		}
	}

	sort.Slice(normalized, func(i, j int) bool {
		return len(normalized[i].Prefix) > len(normalized[j].Prefix)
	})

	return &MountTable{mounts: normalized}, nil
}

// isAncestorPrefix reports whether a is a proper path ancestor of b (so
// "/a" is an ancestor of "/a/b", but "/ab" is not an ancestor of "/a/b").
func isAncestorPrefix(a, b string) bool {
	if a == "/" {
		return b != "/"
	}
	return strings.HasPrefix(b, a+"/")
}

// Lookup returns the FS mounted at the longest prefix of p, and the
// remainder of p after that prefix (always beginning with "/", or equal
// to "/" if p is exactly the mount point). Returns ErrNotFound if no
// prefix matches.
func (t *MountTable) Lookup(p string) (FS, string, error) {
	clean := path.Clean("/" + p)

	for _, m := range t.mounts {
		if m.Prefix == "/" {
			return m.FS, clean, nil
		}
		if clean == m.Prefix {
			return m.FS, "/", nil
		}
		if strings.HasPrefix(clean, m.Prefix+"/") {
			return m.FS, strings.TrimPrefix(clean, m.Prefix), nil
		}
	}

	return nil, "", ifs.ErrNotFound
}

// Mounts returns the table's mounts in longest-prefix-first order.
func (t *MountTable) Mounts() []Mount {
	return append([]Mount(nil), t.mounts...)
}
