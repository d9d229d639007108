package element

import (
	"fmt"
	"math"
	"sync"

	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/method"
)

const (
	// ALCMinGain is the lowest audible gain in dB; anything below mutes.
	ALCMinGain = -64
	// ALCMaxGain is the highest supported gain in dB.
	ALCMaxGain = 63
	// ALCMute is stored for a muted channel.
	ALCMute = math.MinInt8

	DefaultALCChannels = 2
)

// ALCConfig configures an automatic level control element.
type ALCConfig struct {
	Config
	Channels int
}

// ALC holds per-channel gains.
type ALC struct {
	*Base

	mu    sync.RWMutex
	gains []int8
}

var alcMethods = []*method.Method{
	method.MustNew(MethodALCSetGain, func(handle any, args method.Args) error {
		alc, ok := handle.(*ALC)
		if !ok {
			return fmt.Errorf("%T is not an ALC: %w", handle, core.ErrInvalidArgument)
		}
		idx, err := args.Uint8(ArgIdx)
		if err != nil {
			return err
		}
		gain, err := args.Int8(ArgGain)
		if err != nil {
			return err
		}
		return alc.SetGain(idx, gain)
	}, method.U8(ArgIdx), method.I8(ArgGain)),

	method.MustNew(MethodALCGetGain, func(handle any, args method.Args) error {
		alc, ok := handle.(*ALC)
		if !ok {
			return fmt.Errorf("%T is not an ALC: %w", handle, core.ErrInvalidArgument)
		}
		idx, err := args.Uint8(ArgIdx)
		if err != nil {
			return err
		}
		gain, err := alc.Gain(idx)
		if err != nil {
			return err
		}
		return args.PutInt8(ArgGain, gain)
	}, method.U8(ArgIdx), method.I8(ArgGain)),
}

// NewALC creates an ALC with every channel at 0 dB.
func NewALC(cfg ALCConfig) (*ALC, error) {
	if cfg.Channels == 0 {
		cfg.Channels = DefaultALCChannels
	}
	if cfg.Channels < 0 || cfg.Channels > math.MaxUint8 {
		return nil, fmt.Errorf("alc channels %d: %w", cfg.Channels, core.ErrInvalidArgument)
	}
	alc := &ALC{gains: make([]int8, cfg.Channels)}
	base, err := newBase(cfg.Config, alc, alcMethods...)
	if err != nil {
		return nil, err
	}
	alc.Base = base
	return alc, nil
}

// SetGain sets the gain of channel idx in dB. Gains below ALCMinGain mute the
// channel; gains above ALCMaxGain are rejected.
func (a *ALC) SetGain(idx uint8, gain int8) error {
	if gain > ALCMaxGain {
		return fmt.Errorf("alc gain %d dB above %d: %w", gain, ALCMaxGain, core.ErrInvalidArgument)
	}
	if gain < ALCMinGain {
		gain = ALCMute
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if int(idx) >= len(a.gains) {
		return fmt.Errorf("alc channel %d of %d: %w", idx, len(a.gains), core.ErrInvalidArgument)
	}
	a.gains[idx] = gain
	return nil
}

// Gain returns the gain of channel idx in dB.
func (a *ALC) Gain(idx uint8) (int8, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(idx) >= len(a.gains) {
		return 0, fmt.Errorf("alc channel %d of %d: %w", idx, len(a.gains), core.ErrInvalidArgument)
	}
	return a.gains[idx], nil
}

// Channels returns the number of channels.
func (a *ALC) Channels() int { return len(a.gains) }

// CallGetGain reads a gain through the dispatcher.
func (a *ALC) CallGetGain(idx uint8) (int8, error) {
	ec, err := method.Prepare(a.Methods(), MethodALCGetGain)
	if err != nil {
		return 0, err
	}
	defer ec.Release()

	if err := ec.SetUint8(ArgIdx, idx); err != nil {
		return 0, err
	}
	if err := ec.Exec(a); err != nil {
		return 0, err
	}
	return ec.Args().Int8(ArgGain)
}
