package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventChannel(t *testing.T) {
	var got []Event
	c := NewEventChannel("vdec", func(ev Event) { got = append(got, ev) }, 42)

	payload := errors.New("bad frame")
	ev := c.emit(StateRunning, StateError, payload)
	assert.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
	assert.Equal(t, "vdec", ev.Task)
	assert.Equal(t, 42, ev.UserCtx)
	assert.Equal(t, payload, ev.Payload)

	c.SetFunc(nil, nil)
	c.emit(StateError, StateStopped, nil)
	assert.Len(t, got, 1, "nil listener must silence the channel")

	c.SetFunc(func(ev Event) { got = append(got, ev) }, "second")
	c.release()
	c.emit(StateStopped, StateIdle, nil)
	assert.Len(t, got, 1)
}
