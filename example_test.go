package mediatask_test

import (
	"context"
	"fmt"

	mediatask "github.com/Swind/go-media-task"
)

// ExampleInit demonstrates the basic usage with only one import.
func ExampleInit() {
	defer mediatask.ShutdownGlobalTable()

	h, err := mediatask.Init(mediatask.DefaultTaskConfig())
	if err != nil {
		fmt.Println(err)
		return
	}

	done := make(chan struct{})
	frames := 0

	mediatask.RegisterReadyJob(h, "open", func(ctx context.Context, arg any) (mediatask.JobResult, error) {
		fmt.Println("open decoder")
		return mediatask.JobDone, nil
	}, mediatask.JobTimesOnce, nil, false)

	mediatask.RegisterReadyJob(h, "decode", func(ctx context.Context, arg any) (mediatask.JobResult, error) {
		frames++
		fmt.Println("decode frame", frames)
		if frames == 2 {
			close(done)
			return mediatask.JobDone, nil
		}
		return mediatask.JobContinue, nil
	}, mediatask.JobTimesInfinite, nil, false)

	mediatask.Run(h)
	<-done

	mediatask.Stop(h)
	st, _ := mediatask.GetState(h)
	fmt.Println("state:", st)

	// Output:
	// open decoder
	// decode frame 1
	// decode frame 2
	// state: stopped
}

// ExampleSetEventFunc demonstrates observing state transitions.
func ExampleSetEventFunc() {
	defer mediatask.ShutdownGlobalTable()

	h, _ := mediatask.Init(mediatask.DefaultTaskConfig())
	mediatask.SetEventFunc(h, func(ev mediatask.Event) {
		fmt.Printf("%s: %s -> %s\n", ev.UserCtx, ev.Prev, ev.State)
	}, "audio-dec")

	mediatask.Run(h)
	mediatask.Pause(h)
	mediatask.Stop(h)
	mediatask.Reset(h)

	// Output:
	// audio-dec: idle -> running
	// audio-dec: running -> paused
	// audio-dec: paused -> stopped
	// audio-dec: stopped -> idle
	// audio-dec: idle -> stopped
}
