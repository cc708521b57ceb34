package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfc-tools/nfcd/tag2"
	"github.com/nfc-tools/nfcd/tag4"
)

var readTagType string

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the NDEF message off a tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, cleanup, err := buildTarget()
		if err != nil {
			return err
		}
		defer cleanup()

		done := make(chan struct{})
		var msg interface{}

		switch readTagType {
		case "type4":
			tg := tag4.New(t)
			go tg.Init(func() { close(done) })
			if err := waitInit(done); err != nil {
				return err
			}
			if tg.NDEF == nil {
				return errors.New("read: no NDEF message found")
			}
			msg = tg.NDEF
		case "type2":
			tg := tag2.New(t)
			go tg.Init(func() { close(done) })
			if err := waitInit(done); err != nil {
				return err
			}
			if tg.NDEF == nil {
				return errors.New("read: no NDEF message found")
			}
			msg = tg.NDEF
		default:
			return fmt.Errorf("read: unknown --type %q (want type2 or type4)", readTagType)
		}

		fmt.Printf("%v\n", msg)
		return nil
	},
}

func waitInit(done chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("read: timed out waiting for tag initialization")
	}
}

func init() {
	readCmd.Flags().StringVar(&readTagType, "type", "type4", "tag type to read: type2 or type4")
}
