package element

import (
	"fmt"
	"sync"

	"github.com/Swind/go-media-task/core"
	"github.com/Swind/go-media-task/method"
)

// =============================================================================
// FPS Converter
// =============================================================================

const DefaultFPS = 30

// FPSConfig configures a frame rate converter.
type FPSConfig struct {
	Config
	FPS uint16
}

// FPSConverter holds the target frame rate.
type FPSConverter struct {
	*Base

	mu  sync.RWMutex
	fps uint16
}

var fpsMethods = []*method.Method{
	method.MustNew(MethodSetFPS, func(handle any, args method.Args) error {
		c, ok := handle.(*FPSConverter)
		if !ok {
			return fmt.Errorf("%T is not an fps converter: %w", handle, core.ErrInvalidArgument)
		}
		fps, err := args.Uint16(ArgFPS)
		if err != nil {
			return err
		}
		return c.SetFPS(fps)
	}, method.U16(ArgFPS)),
}

// NewFPSConverter creates a converter targeting cfg.FPS, DefaultFPS when zero.
func NewFPSConverter(cfg FPSConfig) (*FPSConverter, error) {
	if cfg.FPS == 0 {
		cfg.FPS = DefaultFPS
	}
	c := &FPSConverter{fps: cfg.FPS}
	base, err := newBase(cfg.Config, c, fpsMethods...)
	if err != nil {
		return nil, err
	}
	c.Base = base
	return c, nil
}

// SetFPS changes the target frame rate. Zero is rejected.
func (c *FPSConverter) SetFPS(fps uint16) error {
	if fps == 0 {
		return fmt.Errorf("fps 0: %w", core.ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
	return nil
}

// FPS returns the target frame rate.
func (c *FPSConverter) FPS() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fps
}

// =============================================================================
// Crop
// =============================================================================

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  uint16
	Height uint16
}

// Region is a rectangle inside a frame.
type Region struct {
	X, Y          uint16
	Width, Height uint16
}

// CropConfig configures a crop element. Defaults follow a QVGA input cropped
// to its top-left quarter.
type CropConfig struct {
	Config
	In     Resolution
	Region Region
}

// Crop holds the region kept from each input frame.
type Crop struct {
	*Base

	in  Resolution
	mu  sync.RWMutex
	rgn Region
}

var cropMethods = []*method.Method{
	method.MustNew(MethodSetCropRgn, func(handle any, args method.Args) error {
		c, ok := handle.(*Crop)
		if !ok {
			return fmt.Errorf("%T is not a crop element: %w", handle, core.ErrInvalidArgument)
		}
		var r Region
		var err error
		if r.X, err = args.Uint16(ArgX); err != nil {
			return err
		}
		if r.Y, err = args.Uint16(ArgY); err != nil {
			return err
		}
		if r.Width, err = args.Uint16(ArgWidth); err != nil {
			return err
		}
		if r.Height, err = args.Uint16(ArgHeight); err != nil {
			return err
		}
		return c.SetRegion(r)
	}, method.U16(ArgX), method.U16(ArgY), method.U16(ArgWidth), method.U16(ArgHeight)),
}

// NewCrop creates a crop element.
func NewCrop(cfg CropConfig) (*Crop, error) {
	if cfg.In == (Resolution{}) {
		cfg.In = Resolution{Width: 320, Height: 240}
	}
	if cfg.Region == (Region{}) {
		cfg.Region = Region{Width: cfg.In.Width / 2, Height: cfg.In.Height / 2}
	}
	c := &Crop{in: cfg.In}
	if err := c.check(cfg.Region); err != nil {
		return nil, err
	}
	c.rgn = cfg.Region

	base, err := newBase(cfg.Config, c, cropMethods...)
	if err != nil {
		return nil, err
	}
	c.Base = base
	return c, nil
}

func (c *Crop) check(r Region) error {
	if r.Width == 0 || r.Height == 0 ||
		uint32(r.X)+uint32(r.Width) > uint32(c.in.Width) ||
		uint32(r.Y)+uint32(r.Height) > uint32(c.in.Height) {
		return fmt.Errorf("crop region %+v outside %dx%d: %w", r, c.in.Width, c.in.Height, core.ErrInvalidArgument)
	}
	return nil
}

// SetRegion changes the cropped region. It may be called while the element runs.
func (c *Crop) SetRegion(r Region) error {
	if err := c.check(r); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rgn = r
	return nil
}

// Region returns the cropped region.
func (c *Crop) Region() Region {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rgn
}

// Input returns the input resolution.
func (c *Crop) Input() Resolution { return c.in }
