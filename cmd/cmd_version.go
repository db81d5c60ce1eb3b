package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information. Set at build time via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// VersionCmd returns the version command.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(versionInfo())
		},
	}
}

func versionInfo() string {
	return fmt.Sprintf(
		"Version:    %s\nCommit:     %s\nBuild Date: %s\nGo Version: %s",
		Version, Commit, BuildDate, runtime.Version(),
	)
}
