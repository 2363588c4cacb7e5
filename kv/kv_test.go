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

package kv_test

import (
	"context"
	"path/filepath"
	"testing"

	"agentfs/clock"
	"agentfs/kv"
	"agentfs/store"

	"github.com/stretchr/testify/require"
)

func newKV(t *testing.T) *kv.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "agent.db"), clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return kv.New(st)
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newKV(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "key", `{"n":1}`))
	value, ok, err := s.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"n":1}`, value)

	require.NoError(t, s.Set(ctx, "key", `{"n":2}`))
	value, _, err = s.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, `{"n":2}`, value)

	require.NoError(t, s.Delete(ctx, "key"))
	_, ok, err = s.Get(ctx, "key")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestKeysSorted(t *testing.T) {
	ctx := context.Background()
	s := newKV(t)

	require.NoError(t, s.Set(ctx, "zebra", "1"))
	require.NoError(t, s.Set(ctx, "apple", "2"))
	require.NoError(t, s.Set(ctx, "mango", "3"))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"apple", "mango", "zebra"}, keys)
}
