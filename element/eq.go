package element

import (
	"fmt"
	"sync"

	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/method"
)

// FilterType selects the EQ filter shape.
type FilterType uint32

const (
	FilterHighPass FilterType = iota
	FilterLowPass
	FilterLowShelf
	FilterHighShelf
	FilterPeak
)

func (t FilterType) valid() bool { return t <= FilterPeak }

// FilterPara describes one EQ band.
type FilterPara struct {
	Type FilterType
	// Fc is the center frequency in Hz.
	Fc uint32
	Q  float32
	// Gain in dB.
	Gain float32
}

// DefaultEQParas is used when EQConfig.Filters is empty.
var DefaultEQParas = []FilterPara{
	{Type: FilterHighPass, Fc: 20, Q: 0.707, Gain: 0},
	{Type: FilterPeak, Fc: 1000, Q: 1, Gain: 0},
	{Type: FilterLowPass, Fc: 20000, Q: 0.707, Gain: 0},
}

// EQConfig configures an equalizer element.
type EQConfig struct {
	Config
	Filters []FilterPara
}

type eqBand struct {
	para    FilterPara
	enabled bool
}

// EQ holds a fixed number of filter bands, all disabled initially.
type EQ struct {
	*Base

	mu    sync.RWMutex
	bands []eqBand
}

func eqFrom(handle any) (*EQ, error) {
	eq, ok := handle.(*EQ)
	if !ok {
		return nil, fmt.Errorf("%T is not an EQ: %w", handle, core.ErrInvalidArgument)
	}
	return eq, nil
}

var eqParaArgs = []method.Arg{
	method.U8(ArgIdx), method.U32(ArgFilterType), method.U32(ArgFc), method.F32(ArgQ), method.F32(ArgGain),
}

var eqMethods = []*method.Method{
	method.MustNew(MethodEQSetPara, func(handle any, args method.Args) error {
		eq, err := eqFrom(handle)
		if err != nil {
			return err
		}
		idx, err := args.Uint8(ArgIdx)
		if err != nil {
			return err
		}
		typ, err := args.Uint32(ArgFilterType)
		if err != nil {
			return err
		}
		fc, err := args.Uint32(ArgFc)
		if err != nil {
			return err
		}
		q, err := args.Float32(ArgQ)
		if err != nil {
			return err
		}
		gain, err := args.Float32(ArgGain)
		if err != nil {
			return err
		}
		return eq.SetPara(idx, FilterPara{Type: FilterType(typ), Fc: fc, Q: q, Gain: gain})
	}, eqParaArgs...),

	method.MustNew(MethodEQGetPara, func(handle any, args method.Args) error {
		eq, err := eqFrom(handle)
		if err != nil {
			return err
		}
		idx, err := args.Uint8(ArgIdx)
		if err != nil {
			return err
		}
		p, err := eq.Para(idx)
		if err != nil {
			return err
		}
		if err := args.PutUint32(ArgFilterType, uint32(p.Type)); err != nil {
			return err
		}
		if err := args.PutUint32(ArgFc, p.Fc); err != nil {
			return err
		}
		if err := args.PutFloat32(ArgQ, p.Q); err != nil {
			return err
		}
		return args.PutFloat32(ArgGain, p.Gain)
	}, eqParaArgs...),

	method.MustNew(MethodEQEnableFilter, func(handle any, args method.Args) error {
		eq, err := eqFrom(handle)
		if err != nil {
			return err
		}
		idx, err := args.Uint8(ArgIdx)
		if err != nil {
			return err
		}
		enable, err := args.Bool(ArgEnable)
		if err != nil {
			return err
		}
		return eq.EnableFilter(idx, enable)
	}, method.U8(ArgIdx), method.Bool(ArgEnable)),
}

// NewEQ creates an EQ from cfg.Filters, or DefaultEQParas when empty.
func NewEQ(cfg EQConfig) (*EQ, error) {
	paras := cfg.Filters
	if len(paras) == 0 {
		paras = DefaultEQParas
	}
	if len(paras) > 255 {
		return nil, fmt.Errorf("eq with %d filters: %w", len(paras), core.ErrInvalidArgument)
	}

	eq := &EQ{bands: make([]eqBand, len(paras))}
	for i, p := range paras {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("eq filter %d: %w", i, err)
		}
		eq.bands[i].para = p
	}
	base, err := newBase(cfg.Config, eq, eqMethods...)
	if err != nil {
		return nil, err
	}
	eq.Base = base
	return eq, nil
}

func (p FilterPara) validate() error {
	if !p.Type.valid() {
		return fmt.Errorf("filter type %d: %w", p.Type, core.ErrInvalidArgument)
	}
	if p.Fc == 0 || p.Q <= 0 {
		return fmt.Errorf("filter fc %d q %g: %w", p.Fc, p.Q, core.ErrInvalidArgument)
	}
	return nil
}

// SetPara replaces the parameters of band idx.
func (e *EQ) SetPara(idx uint8, p FilterPara) error {
	if err := p.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(idx) >= len(e.bands) {
		return fmt.Errorf("eq band %d of %d: %w", idx, len(e.bands), core.ErrInvalidArgument)
	}
	e.bands[idx].para = p
	return nil
}

// Para returns the parameters of band idx.
func (e *EQ) Para(idx uint8) (FilterPara, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if int(idx) >= len(e.bands) {
		return FilterPara{}, fmt.Errorf("eq band %d of %d: %w", idx, len(e.bands), core.ErrInvalidArgument)
	}
	return e.bands[idx].para, nil
}

// EnableFilter switches band idx on or off.
func (e *EQ) EnableFilter(idx uint8, enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(idx) >= len(e.bands) {
		return fmt.Errorf("eq band %d of %d: %w", idx, len(e.bands), core.ErrInvalidArgument)
	}
	e.bands[idx].enabled = enable
	return nil
}

// Enabled reports whether band idx is on.
func (e *EQ) Enabled(idx uint8) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int(idx) < len(e.bands) && e.bands[idx].enabled
}

// Bands returns the number of filter bands.
func (e *EQ) Bands() int { return len(e.bands) }
