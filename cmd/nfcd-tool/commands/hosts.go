package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List card-emulation hosts currently registered on the adapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, cleanup, err := buildTarget()
		if err != nil {
			return err
		}
		defer cleanup()
		a := buildAdapter(t)

		table := newTable("NAME", "PRESENT")
		for _, name := range a.Hosts.Names() {
			h, _ := a.Hosts.Get(name)
			table.Append([]string{name, fmt.Sprintf("%v", h.Present())})
		}
		table.Render()
		return nil
	},
}
