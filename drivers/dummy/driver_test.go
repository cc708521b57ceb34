package dummy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfc-tools/nfcd/target"
)

func TestTransmitReplaysScriptedResponsesInOrder(t *testing.T) {
	d := &Driver{Responses: [][]byte{{0x90, 0x00}, {0x6a, 0x82}}}
	tg := target.New("tag0", d)

	done := make(chan struct{}, 1)
	var status target.Status
	var data []byte
	_, err := tg.Submit([]byte{0x00}, nil, func(s target.Status, d []byte) {
		status, data = s, d
		done <- struct{}{}
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first response")
	}
	assert.Equal(t, target.StatusOK, status)
	assert.Equal(t, []byte{0x90, 0x00}, data)
}

func TestTransmitFailsOnceResponsesExhausted(t *testing.T) {
	d := &Driver{Responses: [][]byte{{0x90, 0x00}}}
	tg := target.New("tag0", d)

	done := make(chan struct{}, 1)
	_, err := tg.Submit([]byte{0x00}, nil, func(target.Status, []byte) { done <- struct{}{} })
	require.NoError(t, err)
	<-done

	var status target.Status
	done2 := make(chan struct{}, 1)
	_, err = tg.Submit([]byte{0x00}, nil, func(s target.Status, _ []byte) {
		status = s
		done2 <- struct{}{}
	})
	require.NoError(t, err)
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for exhausted-responses completion")
	}
	assert.Equal(t, target.StatusError, status)
}

func TestDeactivateMarksTargetGone(t *testing.T) {
	d := &Driver{}
	tg := target.New("tag0", d)

	gone := make(chan struct{}, 1)
	tg.OnGone = func() { gone <- struct{}{} }
	tg.Deactivate()

	select {
	case <-gone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Gone")
	}
	assert.False(t, tg.Present())
}
