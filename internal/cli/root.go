// Package cli implements the rampart command tree.
package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRoot builds the top-level rampart command.
func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rampart",
		Short:         "rampart: MCP security guard pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("rampart {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
