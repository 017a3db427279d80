package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const releaseVersion = "0.4.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quizroom v%s\n", releaseVersion)
		},
	}
}
