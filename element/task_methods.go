package element

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/method"
)

// WaitForever as wait_ms makes control methods wait without bound.
const WaitForever int32 = -1

func taskOf(handle any) (*core.Task, error) {
	switch h := handle.(type) {
	case *core.Task:
		if h != nil {
			return h, nil
		}
	case interface{ Task() *core.Task }:
		if t := h.Task(); t != nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("handle %T is not bound to a task: %w", handle, core.ErrInvalidArgument)
}

func controlMethod(name string, op core.Op) *method.Method {
	return method.MustNew(name, func(handle any, _ method.Args) error {
		task, err := taskOf(handle)
		if err != nil {
			return err
		}
		return task.Do(context.Background(), op)
	})
}

var taskMethods = func() *method.List {
	setTimeout := method.MustNew(MethodSetTimeout, func(handle any, args method.Args) error {
		task, err := taskOf(handle)
		if err != nil {
			return err
		}
		ms, err := args.Int32(ArgWaitMs)
		if err != nil {
			return err
		}
		switch {
		case ms == WaitForever:
			return task.SetTimeout(core.MaxDelay)
		case ms < 0:
			return fmt.Errorf("wait_ms %d: %w", ms, core.ErrInvalidArgument)
		}
		return task.SetTimeout(time.Duration(ms) * time.Millisecond)
	}, method.I32(ArgWaitMs))

	getState := method.MustNew(MethodGetState, func(handle any, args method.Args) error {
		task, err := taskOf(handle)
		if err != nil {
			return err
		}
		return args.PutUint8(ArgState, uint8(task.State()))
	}, method.U8(ArgState))

	list, err := method.NewList(
		controlMethod(MethodRun, core.OpRun),
		controlMethod(MethodStop, core.OpStop),
		controlMethod(MethodPause, core.OpPause),
		controlMethod(MethodResume, core.OpResume),
		controlMethod(MethodReset, core.OpReset),
		setTimeout,
		getState,
	)
	if err != nil {
		panic(err)
	}
	return list
}()

// TaskMethods returns the control methods every task-backed handle accepts.
// The handle passed to them is a *core.Task or anything with a Task() accessor.
func TaskMethods() *method.List { return taskMethods }

// CallTask invokes a task control method by name.
func CallTask(task *core.Task, name string, fill func(*method.ExecContext) error) error {
	return method.Invoke(taskMethods, name, task, fill)
}

// TaskState reads the state through the get_state method.
func TaskState(task *core.Task) (core.State, error) {
	ec, err := method.Prepare(taskMethods, MethodGetState)
	if err != nil {
		return core.StateUninitialized, err
	}
	defer ec.Release()

	if err := ec.Exec(task); err != nil {
		return core.StateUninitialized, err
	}
	v, err := ec.Args().Uint8(ArgState)
	return core.State(v), err
}
