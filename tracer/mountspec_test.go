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

	"github.com/stretchr/testify/require"
)

func TestParseMountSpecValid(t *testing.T) {
	m, err := ParseMountSpec("type=bind,src=/tmp/scratch,dst=/scratch")
	require.NoError(t, err)
	require.Equal(t, MountSpec{Type: "bind", Src: "/tmp/scratch", Dst: "/scratch"}, m)
}

func TestParseMountSpecRejectsBadType(t *testing.T) {
	_, err := ParseMountSpec("type=nfs,src=/a,dst=/b")
	require.Error(t, err)
}

func TestParseMountSpecRequiresSrcAndDst(t *testing.T) {
	_, err := ParseMountSpec("type=bind,src=/a")
	require.Error(t, err)
}

func TestParseMountSpecRejectsUnknownKey(t *testing.T) {
	_, err := ParseMountSpec("type=bind,src=/a,dst=/b,frob=1")
	require.Error(t, err)
}

func TestDefaultMountSpec(t *testing.T) {
	m := defaultMountSpec("/var/lib/agentfs.db")
	require.Equal(t, "sqlite", m.Type)
	require.Equal(t, "/agent", m.Dst)
}
