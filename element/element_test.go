package element

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/method"
)

var (
	_ Element = (*ALC)(nil)
	_ Element = (*EQ)(nil)
	_ Element = (*FPSConverter)(nil)
	_ Element = (*Crop)(nil)
)

func newTask(t *testing.T, name string) *core.Task {
	t.Helper()
	cfg := core.DefaultTaskConfig()
	cfg.Name = name
	task, err := core.NewTask(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = task.Close() })
	return task
}

// frameSource yields n frames then io.EOF.
func frameSource(n int) Source {
	var sent atomic.Int32
	return func(context.Context) ([]byte, error) {
		if int(sent.Add(1)) > n {
			return nil, io.EOF
		}
		return []byte{0xAA}, nil
	}
}

// TestTaskMethods tests control through the dispatcher
// Main test items:
// 1. run/pause/resume/stop/reset drive the task by name
// 2. set_timeout converts milliseconds, -1 waits forever
// 3. get_state writes the state back into the buffer
func TestTaskMethods(t *testing.T) {
	task := newTask(t, "dispatch")

	require.NoError(t, CallTask(task, MethodRun, nil))
	st, err := TaskState(task)
	require.NoError(t, err)
	assert.Equal(t, core.StateRunning, st)

	require.NoError(t, CallTask(task, MethodPause, nil))
	assert.Equal(t, core.StatePaused, task.State())
	require.NoError(t, CallTask(task, MethodResume, nil))
	require.NoError(t, CallTask(task, MethodStop, nil))
	require.NoError(t, CallTask(task, MethodReset, nil))
	assert.Equal(t, core.StateIdle, task.State())

	err = CallTask(task, MethodResume, nil)
	assert.ErrorIs(t, err, core.ErrNotSupported)

	require.NoError(t, CallTask(task, MethodSetTimeout, func(ec *method.ExecContext) error {
		return ec.SetInt32(ArgWaitMs, 150)
	}))
	assert.Equal(t, 150*time.Millisecond, task.Timeout())

	require.NoError(t, CallTask(task, MethodSetTimeout, func(ec *method.ExecContext) error {
		return ec.SetInt32(ArgWaitMs, WaitForever)
	}))
	assert.Equal(t, core.MaxDelay, task.Timeout())

	err = CallTask(task, MethodSetTimeout, func(ec *method.ExecContext) error {
		return ec.SetInt32(ArgWaitMs, -5)
	})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	assert.ErrorIs(t, CallTask(task, "flush", nil), core.ErrNotFound)
	assert.ErrorIs(t, method.Invoke(TaskMethods(), MethodRun, "not a task", nil), core.ErrInvalidArgument)
}

// TestALC tests the gain methods
// Main test items:
// 1. set_gain through the dispatcher updates the channel
// 2. Gains below -64 dB mute, above 63 dB fail
// 3. get_gain returns the value through the exec buffer
func TestALC(t *testing.T) {
	alc, err := NewALC(ALCConfig{Config: Config{Name: "alc"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultALCChannels, alc.Channels())

	setGain := func(idx uint8, gain int8) error {
		return alc.Call(MethodALCSetGain, func(ec *method.ExecContext) error {
			return errors.Join(ec.SetUint8(ArgIdx, idx), ec.SetInt8(ArgGain, gain))
		})
	}

	require.NoError(t, setGain(1, -12))
	g, err := alc.Gain(1)
	require.NoError(t, err)
	assert.Equal(t, int8(-12), g)

	g, err = alc.CallGetGain(1)
	require.NoError(t, err)
	assert.Equal(t, int8(-12), g)

	require.NoError(t, setGain(0, -100))
	g, _ = alc.Gain(0)
	assert.Equal(t, int8(ALCMute), g)

	assert.ErrorIs(t, setGain(0, 64), core.ErrInvalidArgument)
	assert.ErrorIs(t, setGain(2, 0), core.ErrInvalidArgument)
	_, err = alc.CallGetGain(9)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = NewALC(ALCConfig{Config: Config{Name: "bad"}, Channels: 300})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestEQ(t *testing.T) {
	eq, err := NewEQ(EQConfig{Config: Config{Name: "eq"}})
	require.NoError(t, err)
	assert.Equal(t, len(DefaultEQParas), eq.Bands())
	assert.False(t, eq.Enabled(1))

	err = eq.Call(MethodEQSetPara, func(ec *method.ExecContext) error {
		return errors.Join(
			ec.SetUint8(ArgIdx, 1),
			ec.SetUint32(ArgFilterType, uint32(FilterLowShelf)),
			ec.SetUint32(ArgFc, 250),
			ec.SetFloat32(ArgQ, 0.5),
			ec.SetFloat32(ArgGain, 3.5),
		)
	})
	require.NoError(t, err)
	p, err := eq.Para(1)
	require.NoError(t, err)
	assert.Equal(t, FilterPara{Type: FilterLowShelf, Fc: 250, Q: 0.5, Gain: 3.5}, p)

	ec, err := method.Prepare(eq.Methods(), MethodEQGetPara)
	require.NoError(t, err)
	require.NoError(t, ec.SetUint8(ArgIdx, 1))
	require.NoError(t, ec.Exec(eq))
	fc, err := ec.Args().Uint32(ArgFc)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), fc)
	ec.Release()

	require.NoError(t, eq.Call(MethodEQEnableFilter, func(ec *method.ExecContext) error {
		return errors.Join(ec.SetUint8(ArgIdx, 1), ec.SetBool(ArgEnable, true))
	}))
	assert.True(t, eq.Enabled(1))

	err = eq.Call(MethodEQSetPara, func(ec *method.ExecContext) error {
		return errors.Join(ec.SetUint8(ArgIdx, 0), ec.SetUint32(ArgFilterType, 99))
	})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestVideoElements(t *testing.T) {
	fps, err := NewFPSConverter(FPSConfig{Config: Config{Name: "fps"}})
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultFPS), fps.FPS())

	require.NoError(t, fps.Call(MethodSetFPS, func(ec *method.ExecContext) error {
		return ec.SetUint16(ArgFPS, 15)
	}))
	assert.Equal(t, uint16(15), fps.FPS())
	assert.ErrorIs(t, fps.Call(MethodSetFPS, nil), core.ErrInvalidArgument)

	crop, err := NewCrop(CropConfig{Config: Config{Name: "crop"}})
	require.NoError(t, err)
	assert.Equal(t, Region{Width: 160, Height: 120}, crop.Region())

	setRgn := func(r Region) error {
		return crop.Call(MethodSetCropRgn, func(ec *method.ExecContext) error {
			return errors.Join(
				ec.SetUint16(ArgX, r.X),
				ec.SetUint16(ArgY, r.Y),
				ec.SetUint16(ArgWidth, r.Width),
				ec.SetUint16(ArgHeight, r.Height),
			)
		})
	}
	require.NoError(t, setRgn(Region{X: 16, Y: 8, Width: 64, Height: 48}))
	assert.Equal(t, Region{X: 16, Y: 8, Width: 64, Height: 48}, crop.Region())
	assert.ErrorIs(t, setRgn(Region{X: 300, Width: 64, Height: 48}), core.ErrInvalidArgument)

	// a crop element handle also answers task control methods once bound
	task := newTask(t, "video")
	require.NoError(t, crop.Bind(task))
	require.NoError(t, crop.Call(MethodRun, nil))
	assert.Equal(t, core.StateRunning, task.State())
}

// TestBind tests element jobs on a task
// Main test items:
// 1. open runs once, process moves frames until EOF
// 2. A sink error moves the task to ERROR
// 3. Binding twice fails, Unbind removes the jobs
func TestBind(t *testing.T) {
	var mu sync.Mutex
	var got int
	sink := func(context.Context, []byte) error {
		mu.Lock()
		got++
		mu.Unlock()
		return nil
	}

	alc, err := NewALC(ALCConfig{Config: Config{Name: "alc", Source: frameSource(5), Sink: sink}})
	require.NoError(t, err)
	task := newTask(t, "audio")
	require.NoError(t, alc.Bind(task))
	assert.ErrorIs(t, alc.Bind(task), core.ErrInvalidState)
	assert.Len(t, task.Jobs(), 2)

	require.NoError(t, task.Run())
	require.Eventually(t, func() bool { return task.Stats().Ready == 0 }, 2*time.Second, time.Millisecond)
	assert.True(t, alc.Opened())
	assert.Equal(t, uint64(5), alc.Frames())
	mu.Lock()
	assert.Equal(t, 5, got)
	mu.Unlock()

	require.NoError(t, alc.Unbind())
	assert.Empty(t, task.Jobs())
	assert.Nil(t, alc.Task())

	broken, err := NewEQ(EQConfig{Config: Config{
		Name:   "eq",
		Source: frameSource(10),
		Sink:   func(context.Context, []byte) error { return errors.New("i2s underrun") },
	}})
	require.NoError(t, err)
	task2 := newTask(t, "audio2")
	require.NoError(t, broken.Bind(task2))
	require.NoError(t, task2.Run())
	require.Eventually(t, func() bool { return task2.State() == core.StateError }, 2*time.Second, time.Millisecond)
	assert.Contains(t, task2.LastError().Error(), "i2s underrun")
}

// TestOpenedAcrossReset tests the open flag over the task lifecycle
// Main test items:
// 1. Opened is false after Bind and true once the task ran
// 2. A task reset keeps it set and the open job runs again on the next run
// 3. Unbind clears it
func TestOpenedAcrossReset(t *testing.T) {
	alc, err := NewALC(ALCConfig{Config: Config{Name: "alc"}})
	require.NoError(t, err)
	task := newTask(t, "audio")
	require.NoError(t, alc.Bind(task))
	assert.False(t, alc.Opened())

	require.NoError(t, task.Run())
	require.Eventually(t, func() bool { return task.Stats().Ready == 0 }, 2*time.Second, time.Millisecond)
	assert.True(t, alc.Opened())

	require.NoError(t, task.Stop())
	require.NoError(t, task.Reset())
	assert.True(t, alc.Opened())
	assert.Equal(t, 2, task.Stats().Ready)

	require.NoError(t, task.Run())
	require.Eventually(t, func() bool { return task.Stats().Ready == 0 }, 2*time.Second, time.Millisecond)
	assert.True(t, alc.Opened())

	require.NoError(t, alc.Unbind())
	assert.False(t, alc.Opened())
}
