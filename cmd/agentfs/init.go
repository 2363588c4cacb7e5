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
	"agentfs/store"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Create a new agent database, seeded with an empty root directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := dbPath
		if len(args) == 1 {
			target = args[0]
		}

		if _, err := os.Stat(target); err == nil && !initForce {
			return fmt.Errorf("agentfs: %s already exists (use --force to reinitialize)", target)
		}
		if initForce {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("agentfs: removing %s: %w", target, err)
			}
		}

		ctx := cmd.Context()
		st, err := store.Open(ctx, target, clock.RealClock{})
		if err != nil {
			return fmt.Errorf("agentfs: initializing %s: %w", target, err)
		}
		defer st.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", target)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "reinitialize an existing database file")
}
