package core

import (
	"sync"
	"time"
)

// Event describes one accepted state transition of a Task.
type Event struct {
	// Task is the name of the emitting task.
	Task string
	Prev  State
	State State
	// Payload is optional; for transitions into StateError it carries the job error.
	Payload any
	Time    time.Time
	// UserCtx is the context registered with the listener.
	UserCtx any
}

// EventFunc receives Task events.
//
// The callback runs on the Task's execution goroutine. It must not block, and it
// must not call the Task's control operations (Run, Stop, Pause, Resume, Reset)
// synchronously: the execution goroutine cannot service the request while it is
// inside the callback. With a finite timeout the call returns ErrTimeout and the
// request stays posted; with MaxDelay it never returns. Deinit and Close wait for
// the execution goroutine to exit, so calling them from a callback or a job
// deadlocks whatever the timeout.
type EventFunc func(ev Event)

// EventChannel delivers events to a single listener. SetFunc replaces the
// listener; there is no multicast.
type EventChannel struct {
	mu      sync.RWMutex
	fn      EventFunc
	userCtx any
	task    string
}

// NewEventChannel creates a channel for the named task.
func NewEventChannel(task string, fn EventFunc, userCtx any) *EventChannel {
	return &EventChannel{task: task, fn: fn, userCtx: userCtx}
}

// SetFunc replaces the listener. A nil fn silences the channel.
func (c *EventChannel) SetFunc(fn EventFunc, userCtx any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = fn
	c.userCtx = userCtx
}

// emit delivers one event synchronously. It is called by the Task only.
func (c *EventChannel) emit(prev, next State, payload any) Event {
	c.mu.RLock()
	fn, userCtx := c.fn, c.userCtx
	c.mu.RUnlock()

	ev := Event{
		Task:    c.task,
		Prev:    prev,
		State:   next,
		Payload: payload,
		Time:    time.Now(),
		UserCtx: userCtx,
	}
	if fn != nil {
		fn(ev)
	}
	return ev
}

func (c *EventChannel) release() {
	c.SetFunc(nil, nil)
}
