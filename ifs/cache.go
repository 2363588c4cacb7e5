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

package ifs

import lru "github.com/hashicorp/golang-lru/v2"

// dentryKey is the cache key for a resolved child lookup: the parent
// inode and the child's name within it.
type dentryKey struct {
	parentIno uint64
	name      string
}

type dentryVal struct {
	ino  uint64
	mode uint32
}

// dentryCache fronts lookupChild with a bounded LRU of resolved
// (parent, name) -> (ino, mode) pairs. It is invalidated eagerly on any
// mutation that adds, removes, or replaces a dentry; nothing here is
// allowed to serve a stale entry past the transaction that changed it.
type dentryCache struct {
	cache *lru.Cache[dentryKey, dentryVal]
}

func newDentryCache(size int) *dentryCache {
	c, err := lru.New[dentryKey, dentryVal](size)
	if err != nil {
		// Only returns an error for a non-positive size, which callers
		// below never pass.
		panic(err)
	}
	return &dentryCache{cache: c}
}

func (c *dentryCache) get(parent uint64, name string) (dentryVal, bool) {
	return c.cache.Get(dentryKey{parent, name})
}

func (c *dentryCache) put(parent uint64, name string, ino uint64, mode uint32) {
	c.cache.Add(dentryKey{parent, name}, dentryVal{ino: ino, mode: mode})
}

func (c *dentryCache) invalidate(parent uint64, name string) {
	c.cache.Remove(dentryKey{parent, name})
}

// applyPending runs cache mutations collected while a transaction was
// still open. Callers only invoke this once the owning store.WithTx call
// has returned nil, so a rolled-back transaction never leaves the cache
// holding a put or invalidate for a row that was never actually committed.
func applyPending(ops []func()) {
	for _, op := range ops {
		op()
	}
}
