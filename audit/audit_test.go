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

package audit_test

import (
	"context"
	"path/filepath"
	"testing"

	"agentfs/audit"
	"agentfs/clock"
	"agentfs/store"

	"github.com/stretchr/testify/require"
)

func newLog(t *testing.T) *audit.Log {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "agent.db"), clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return audit.New(st)
}

func strPtr(s string) *string { return &s }

func TestRecordAndByName(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	params := strPtr(`{"path":"/a"}`)
	result := strPtr(`{"ok":true}`)

	id, err := log.Record(ctx, "read_file", 100, 101, params, result, nil)
	require.NoError(t, err)
	require.NotZero(t, id)

	id2, err := log.Record(ctx, "read_file", 200, 203, params, nil, strPtr("not found"))
	require.NoError(t, err)
	require.Greater(t, id2, id)

	entries, err := log.ByName(ctx, "read_file", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest first
	require.Equal(t, id2, entries[0].ID)
	require.EqualValues(t, 3000, entries[0].DurationMs)
	require.NotNil(t, entries[0].Error)
}

func TestSinceFilters(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	_, err := log.Record(ctx, "a", 10, 11, nil, nil, nil)
	require.NoError(t, err)
	_, err = log.Record(ctx, "b", 50, 51, nil, nil, nil)
	require.NoError(t, err)

	entries, err := log.Since(ctx, 40, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Name)
}

func TestStatsAggregates(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	_, err := log.Record(ctx, "x", 0, 1, nil, strPtr("ok"), nil)
	require.NoError(t, err)
	_, err = log.Record(ctx, "x", 0, 2, nil, nil, strPtr("boom"))
	require.NoError(t, err)

	stats, err := log.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, "x", stats[0].Name)
	require.EqualValues(t, 2, stats[0].Total)
	require.EqualValues(t, 1, stats[0].Successful)
	require.EqualValues(t, 1, stats[0].Failed)
}
