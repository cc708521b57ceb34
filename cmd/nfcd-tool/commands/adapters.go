package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// newTable returns a tablewriter configured the way this tool renders
// every listing: no borders, left-aligned, two-space padding.
func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List the configured adapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, cleanup, err := buildTarget()
		if err != nil {
			return err
		}
		defer cleanup()
		a := buildAdapter(t)

		table := newTable("NAME", "ENABLED", "POWERED", "MODE", "TARGET PRESENT")
		table.Append([]string{
			a.Name,
			fmt.Sprintf("%v", a.Enabled()),
			fmt.Sprintf("%v", a.Powered()),
			fmt.Sprintf("%#x", uint32(a.CurrentMode())),
			fmt.Sprintf("%v", a.TargetPresent()),
		})
		table.Render()
		return nil
	},
}
