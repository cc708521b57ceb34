package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/nfc-tools/nfcd/tag2"
)

var formatForce bool

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Erase a tag's data area (destructive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !formatForce {
			prompt := promptui.Prompt{
				Label:     "This will erase the tag's data area. Continue",
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				return errors.New("format: aborted")
			}
		}

		t, cleanup, err := buildTarget()
		if err != nil {
			return err
		}
		defer cleanup()

		tg := tag2.New(t)
		done := make(chan struct{})
		go tg.Init(func() { close(done) })
		if err := waitInit(done); err != nil {
			return err
		}

		blank := make([]byte, tg.DataSize)
		writeDone := make(chan tag2.Status, 1)
		tg.WriteData(0, blank, func(status tag2.Status) { writeDone <- status })

		select {
		case status := <-writeDone:
			if status != tag2.StatusOK {
				return errors.New("format: tag rejected the erase")
			}
			fmt.Println("tag formatted")
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("format: timed out waiting for erase to complete")
		}
	},
}

func init() {
	formatCmd.Flags().BoolVar(&formatForce, "force", false, "skip the confirmation prompt")
}
