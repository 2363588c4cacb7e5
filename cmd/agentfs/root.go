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
	"log/slog"
	"os"

	"agentfs/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes: 0 on success, 1 on a usage error (bad flags, wrong number
// of arguments, a malformed --mount value), 2 for a runtime failure (bad
// database, a mount table that cannot be built, I/O error). `run` is the one exception -- once the guest is exec'd its
// own exit code is forwarded verbatim instead.
const (
	exitOK    = 0
	exitUsage = 1
	exitError = 2
)

var (
	dbPath    string
	logFormat string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "agentfs",
	Short: "A single-file, auditable runtime store for autonomous agents",
	Long: `agentfs is a single SQLite file combining a POSIX-shaped virtual
filesystem, a key-value store, and an immutable tool-call audit log,
plus a ptrace-based shim that lets an unmodified guest process see that
filesystem through ordinary syscalls.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := parseLevel(logLevel)
		logger.Init(os.Stderr, logFormat, level)
	},
}

func parseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return logger.LevelTrace
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "agentfs.db", "path to the agent's database file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum log severity: trace, debug, info, warn, error")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
	viper.SetEnvPrefix("AGENTFS")
	viper.AutomaticEnv()

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(fsCmd)
	rootCmd.AddCommand(runCmd)

	// Flag parsing and argument-count errors are usage errors.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	for _, c := range []*cobra.Command{initCmd, fsLsCmd, fsCatCmd, runCmd} {
		validate := c.Args
		c.Args = func(cmd *cobra.Command, args []string) error {
			if err := validate(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		}
	}
}

// Execute runs the root command and translates its outcome into a
// process exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.For("cmd").Error("command failed", "err", err)
		if _, ok := err.(usageError); ok {
			os.Exit(exitUsage)
		}
		os.Exit(exitError)
	}
}

// usageError marks an error as a malformed invocation (exit code 1)
// rather than a runtime failure (exit code 2).
type usageError struct{ error }

func newUsageError(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}
