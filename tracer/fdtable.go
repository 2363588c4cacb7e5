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
	"sync"

	"agentfs/ifs"
	"agentfs/vfs"
)

// virtualFDBase is the first fd number the shim hands out, chosen high
// enough to never collide with kernel-issued fds in normal programs.
const virtualFDBase = 1000

// handleState is the per-handle state machine: Open -> Closed. Closed is
// terminal and idempotent under repeated close (a second close yields
// EBADF).
type handleState int

const (
	stateOpen handleState = iota
	stateClosed
)

// openFile is one entry in a fdTable: a vfs.Handle plus the bookkeeping
// the shim needs (close-on-exec, current state).
type openFile struct {
	handle      vfs.Handle
	path        string
	flags       vfs.OpenFlags
	closeOnExec bool
	state       handleState
	refs        int

	// Directory-only bookkeeping for getdents64: the entry list and
	// inode numbers fixed at open time (a directory handle here doesn't
	// observe concurrent mutations after opening), plus the cookie of
	// the next entry to emit.
	dirEntries []ifs.DirEntry
	selfIno    uint64
	parentIno  uint64
	dirCookie  uint64
}

// fdTable is the per-traced-task mapping from virtual fd number to
// handle, parallel to and disjoint from the kernel's own fd table.
// Access is serialized by a single mutex; critical sections are short
// (map lookup, or a handle-clone for fork).
type fdTable struct {
	mu    sync.Mutex
	files map[int]*openFile
}

func newFDTable() *fdTable {
	return &fdTable{files: make(map[int]*openFile)}
}

// allocate returns the smallest free virtual fd at or above
// virtualFDBase and installs of as its entry.
func (t *fdTable) allocate(of *openFile) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := virtualFDBase
	for {
		if _, taken := t.files[fd]; !taken {
			break
		}
		fd++
	}
	of.refs++
	t.files[fd] = of
	return fd
}

// lookup returns the entry for fd, and whether it exists in this table at
// all (as opposed to naming a real kernel fd, which the shim passes
// through unconditionally).
func (t *fdTable) lookup(fd int) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	of, ok := t.files[fd]
	return of, ok
}

// isVirtual reports whether fd falls in the reserved virtual range.
func isVirtual(fd int) bool {
	return fd >= virtualFDBase
}

// dup installs a second virtual fd referencing the same handle as fd,
// at the smallest free number (or, for dup2/dup3, at exactly newfd).
func (t *fdTable) dup(fd int) (int, error) {
	t.mu.Lock()
	of, ok := t.files[fd]
	if !ok || of.state == stateClosed {
		t.mu.Unlock()
		return 0, ifs.ErrBadHandle
	}
	t.mu.Unlock()

	return t.allocate(of), nil
}

func (t *fdTable) dupTo(fd, newfd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	of, ok := t.files[fd]
	if !ok || of.state == stateClosed {
		return ifs.ErrBadHandle
	}
	if existing, ok := t.files[newfd]; ok {
		existing.refs--
		if existing.refs == 0 {
			existing.handle.Close()
		}
	}
	of.refs++
	t.files[newfd] = of
	return nil
}

// close releases fd. Closing an fd not present in the table, or already
// closed, yields EBADF; closing the last reference to a handle closes
// the underlying handle.
func (t *fdTable) close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	of, ok := t.files[fd]
	if !ok {
		return ifs.ErrBadHandle
	}
	delete(t.files, fd)

	of.refs--
	if of.refs <= 0 {
		of.state = stateClosed
		return of.handle.Close()
	}
	return nil
}

// clone duplicates the entire table for a forked child task, sharing the
// same underlying handles so writes through either task's fd are
// visible to the other, as with a real fork.
func (t *fdTable) clone() *fdTable {
	t.mu.Lock()
	defer t.mu.Unlock()

	clone := newFDTable()
	for fd, of := range t.files {
		of.refs++
		clone.files[fd] = of
	}
	return clone
}

// closeExecVictims returns the fds to close after an exec because they
// were marked close-on-exec, removing them from the table.
func (t *fdTable) closeExecVictims() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var victims []int
	for fd, of := range t.files {
		if of.closeOnExec {
			victims = append(victims, fd)
		}
	}
	for _, fd := range victims {
		of := t.files[fd]
		delete(t.files, fd)
		of.refs--
		if of.refs <= 0 {
			of.handle.Close()
		}
	}
	return victims
}
