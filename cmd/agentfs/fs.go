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
	"agentfs/ifs"
	"agentfs/store"

	"github.com/spf13/cobra"
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Inspect the virtual filesystem in an agent database directly",
}

var fsLsCmd = &cobra.Command{
	Use:   "ls <file> <path>",
	Short: "List a directory's entries",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, path := args[0], args[1]
		return withFilesystem(cmd, file, func(fsys *ifs.Filesystem) error {
			entries, err := fsys.Readdir(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("agentfs: ls %s: %w", path, err)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%c %s\n", entryTypeChar(e.Type), e.Name)
			}
			return nil
		})
	},
}

var fsCatCmd = &cobra.Command{
	Use:   "cat <file> <path>",
	Short: "Print a file's contents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, path := args[0], args[1]
		return withFilesystem(cmd, file, func(fsys *ifs.Filesystem) error {
			data, err := fsys.Read(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("agentfs: cat %s: %w", path, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		})
	},
}

func entryTypeChar(t ifs.FileType) byte {
	switch t {
	case ifs.TypeDirectory:
		return 'd'
	case ifs.TypeSymlink:
		return 'l'
	default:
		return 'f'
	}
}

// withFilesystem opens file read-write (SQLite has no cheaper read-only
// handle that still shares the schema bootstrap path) for the duration
// of fn, and always closes it afterward.
func withFilesystem(cmd *cobra.Command, file string, fn func(*ifs.Filesystem) error) error {
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("agentfs: %s: %w", file, err)
	}
	st, err := store.Open(cmd.Context(), file, clock.RealClock{})
	if err != nil {
		return fmt.Errorf("agentfs: opening %s: %w", file, err)
	}
	defer st.Close()

	return fn(ifs.New(st, 4096))
}

func init() {
	fsCmd.AddCommand(fsLsCmd)
	fsCmd.AddCommand(fsCatCmd)
}
