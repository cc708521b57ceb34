package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags currently registered on the adapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, cleanup, err := buildTarget()
		if err != nil {
			return err
		}
		defer cleanup()
		a := buildAdapter(t)

		table := newTable("NAME", "PRESENT", "TYPE2", "TYPE4")
		for _, name := range a.Tags.Names() {
			h, _ := a.Tags.Get(name)
			table.Append([]string{
				name,
				fmt.Sprintf("%v", h.Present()),
				fmt.Sprintf("%v", h.Type2 != nil),
				fmt.Sprintf("%v", h.Type4 != nil),
			})
		}
		table.Render()
		return nil
	},
}
