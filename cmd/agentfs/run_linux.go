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

package main

import (
	"fmt"
	"os"

	"agentfs/clock"
	"agentfs/tracer"

	"github.com/spf13/cobra"
)

var (
	mountSpecs []string
	strace     bool
)

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run a command with its filesystem syscalls served by agentfs",
	Long: `run execs command under ptrace(2), servicing its filesystem
syscalls against the configured Mount Table instead of the host
filesystem. By default a single sqlite mount at /agent backs onto --db;
additional --mount flags of the form type=bind|sqlite,src=...,dst=...
extend the namespace.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := make([]tracer.MountSpec, 0, len(mountSpecs))
		for _, raw := range mountSpecs {
			spec, err := tracer.ParseMountSpec(raw)
			if err != nil {
				return newUsageError("agentfs: %w", err)
			}
			specs = append(specs, spec)
		}

		ctx := cmd.Context()
		mounts, stores, err := tracer.BuildMountTable(ctx, specs, dbPath, clock.RealClock{})
		if err != nil {
			return fmt.Errorf("agentfs: building mount table: %w", err)
		}

		rt := tracer.NewRuntime(mounts, stores, strace, os.Stderr)

		exitCode, runErr := rt.Run(ctx, args[0], args[1:])
		rt.Close()
		if runErr != nil {
			return fmt.Errorf("agentfs: running guest: %w", runErr)
		}
		os.Exit(exitCode)
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&mountSpecs, "mount", nil, "additional mount, as type=bind|sqlite,src=...,dst=... (repeatable)")
	runCmd.Flags().BoolVar(&strace, "strace", false, "log every intercepted syscall to stderr")
	runCmd.Flags().SetInterspersed(false)
}
