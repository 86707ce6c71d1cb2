package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/calcsite/calculator-sdk-go/config"
)

// NewVersionCommand creates the version command
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd.OutOrStdout(), version)
		},
	}
}

func printVersion(w io.Writer, version string) error {
	table := uitable.New()
	table.RightAlign(0)
	table.Separator = " "
	table.AddRow("version:", version)
	table.AddRow("userAgent:", config.DefaultClientName+"/"+config.DefaultVersion)
	table.AddRow("goVersion:", runtime.Version())
	table.AddRow("platform:", runtime.GOOS+"/"+runtime.GOARCH)

	_, err := fmt.Fprintln(w, table.String())
	return err
}
