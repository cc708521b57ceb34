package commands

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfc-tools/nfcd/tag2"
)

var writePayload string

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a raw payload to a Type 2 tag's data area",
	RunE: func(cmd *cobra.Command, args []string) error {
		if writePayload == "" {
			return errors.New("write: --payload is required")
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

		writeDone := make(chan tag2.Status, 1)
		tg.WriteData(0, []byte(writePayload), func(status tag2.Status) { writeDone <- status })

		select {
		case status := <-writeDone:
			if status != tag2.StatusOK {
				return errors.New("write: tag rejected the write")
			}
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("write: timed out waiting for write to complete")
		}
	},
}

func init() {
	writeCmd.Flags().StringVar(&writePayload, "payload", "", "raw bytes to write, as text")
}
