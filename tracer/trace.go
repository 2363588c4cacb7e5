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
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// taskTracer carries a correlation id per traced task so that --strace output
// for an interleaved multi-threaded guest can be demultiplexed by reader
// tools.
type taskTracer struct {
	mu     sync.Mutex
	out    io.Writer
	ids    map[int]string
	enable bool
}

func newTaskTracer(out io.Writer, enable bool) *taskTracer {
	return &taskTracer{out: out, ids: make(map[int]string), enable: enable}
}

func (t *taskTracer) idFor(pid int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[pid]
	if !ok {
		id = uuid.NewString()[:8]
		t.ids[pid] = id
	}
	return id
}

// syscallf writes one strace-style line: "<task-id> pid=<pid> <name>(<args>) = <result>".
// A no-op when tracing is disabled, so callers can call it unconditionally.
func (t *taskTracer) syscallf(pid int, name string, result string, argsFmt string, args ...any) {
	if !t.enable {
		return
	}
	id := t.idFor(pid)
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s pid=%d %s(%s) = %s\n", id, pid, name, fmt.Sprintf(argsFmt, args...), result)
}

func (t *taskTracer) forget(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ids, pid)
}
