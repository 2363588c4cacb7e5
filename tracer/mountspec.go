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
	"context"
	"fmt"
	"strings"

	"agentfs/clock"
	"agentfs/ifs"
	"agentfs/store"
	"agentfs/vfs"
)

// MountSpec is one parsed --mount flag value, of the form
// "type=<bind|sqlite>,src=<path>,dst=<guest-path>". This small grammar
// is hand-rolled rather than pulled from a flags library; see DESIGN.md.
type MountSpec struct {
	Type string // "bind" or "sqlite"
	Src  string
	Dst  string
}

// ParseMountSpec parses one "type=...,src=...,dst=..." string.
func ParseMountSpec(s string) (MountSpec, error) {
	var m MountSpec
	for _, kv := range strings.Split(s, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return MountSpec{}, fmt.Errorf("tracer: malformed mount spec clause %q in %q", kv, s)
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch key {
		case "type":
			m.Type = value
		case "src":
			m.Src = value
		case "dst":
			m.Dst = value
		default:
			return MountSpec{}, fmt.Errorf("tracer: unknown mount spec key %q in %q", key, s)
		}
	}

	if m.Type != "bind" && m.Type != "sqlite" {
		return MountSpec{}, fmt.Errorf("tracer: mount type must be bind or sqlite, got %q", m.Type)
	}
	if m.Src == "" || m.Dst == "" {
		return MountSpec{}, fmt.Errorf("tracer: mount spec %q missing src or dst", s)
	}
	return m, nil
}

// defaultMountSpec is appended when the caller did not override /agent:
// an implicit mount equivalent to type=sqlite,src=<default db>,dst=/agent
// is added last whenever /agent isn't already claimed.
func defaultMountSpec(defaultDB string) MountSpec {
	return MountSpec{Type: "sqlite", Src: defaultDB, Dst: "/agent"}
}

// BuildMountTable opens every backend named by specs (plus the implicit
// default, if /agent isn't already claimed) and assembles them into an
// immutable vfs.MountTable. Returns the opened *store.Store instances so
// the caller can close them on shutdown.
func BuildMountTable(ctx context.Context, specs []MountSpec, defaultDB string, c clock.Clock) (*vfs.MountTable, []*store.Store, error) {
	haveAgent := false
	for _, s := range specs {
		if normalizeDst(s.Dst) == "/agent" {
			haveAgent = true
		}
	}
	if !haveAgent {
		specs = append(specs, defaultMountSpec(defaultDB))
	}

	var mounts []vfs.Mount
	var stores []*store.Store

	for _, s := range specs {
		switch s.Type {
		case "bind":
			mounts = append(mounts, vfs.Mount{Prefix: s.Dst, FS: vfs.NewPassthrough(s.Src)})
		case "sqlite":
			st, err := store.Open(ctx, s.Src, c)
			if err != nil {
				for _, opened := range stores {
					opened.Close()
				}
				return nil, nil, fmt.Errorf("tracer: opening sqlite mount %q: %w", s.Src, err)
			}
			stores = append(stores, st)
			fs := ifs.New(st, 4096)
			mounts = append(mounts, vfs.Mount{Prefix: s.Dst, FS: vfs.NewIFSBacked(fs)})
		}
	}

	table, err := vfs.NewMountTable(mounts)
	if err != nil {
		for _, opened := range stores {
			opened.Close()
		}
		return nil, nil, err
	}
	return table, stores, nil
}

func normalizeDst(dst string) string {
	if dst == "" {
		return "/"
	}
	if dst[0] != '/' {
		return "/" + dst
	}
	return strings.TrimSuffix(dst, "/")
}
