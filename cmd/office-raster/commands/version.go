package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/spherical/office-raster/cmd/office-raster/ui"
	"github.com/spherical/office-raster/pkg/officeraster"
)

// Version is set by main from its build-time version variable.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version and the external tools in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		ui.Message("office-raster %s (%s %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		ui.Newline()

		client := officeraster.NewClient(appConfig, officeraster.WithLogger(logger))
		rows := toolRows(client.Tools())
		ui.Table([]string{"Tool", "Path"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func toolRows(tools []officeraster.Tool) [][]string {
	rows := make([][]string, 0, len(tools))
	for _, tool := range tools {
		path := tool.Path
		if tool.Err != nil {
			path = "not found"
		}
		rows = append(rows, []string{tool.Name, path})
	}
	return rows
}
