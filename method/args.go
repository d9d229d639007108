package method

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Swind/go-media-task/core"
)

// Args is the read side of an exec buffer, handed to a Func.
type Args struct {
	desc []ArgDesc
	buf  []byte
}

// Desc returns the argument layouts.
func (a Args) Desc() []ArgDesc { return a.desc }

// Raw returns the whole exec buffer.
func (a Args) Raw() []byte { return a.buf }

func (a Args) slot(name string, t ArgType) ([]byte, error) {
	for _, d := range a.desc {
		if d.Name != name {
			continue
		}
		if d.Type != t {
			return nil, fmt.Errorf("argument %q is %s, not %s: %w", name, d.Type, t, core.ErrInvalidArgument)
		}
		if d.Offset+d.Size > len(a.buf) {
			return nil, fmt.Errorf("argument %q outside %d byte buffer: %w", name, len(a.buf), core.ErrInvalidArgument)
		}
		return a.buf[d.Offset : d.Offset+d.Size], nil
	}
	return nil, fmt.Errorf("argument %q: %w", name, core.ErrNotFound)
}

func (a Args) Uint8(name string) (uint8, error) {
	b, err := a.slot(name, ArgUint8)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (a Args) Int8(name string) (int8, error) {
	b, err := a.slot(name, ArgInt8)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (a Args) Bool(name string) (bool, error) {
	b, err := a.slot(name, ArgBool)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (a Args) Uint16(name string) (uint16, error) {
	b, err := a.slot(name, ArgUint16)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (a Args) Int16(name string) (int16, error) {
	b, err := a.slot(name, ArgInt16)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (a Args) Uint32(name string) (uint32, error) {
	b, err := a.slot(name, ArgUint32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (a Args) Int32(name string) (int32, error) {
	b, err := a.slot(name, ArgInt32)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (a Args) Float32(name string) (float32, error) {
	b, err := a.slot(name, ArgFloat32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// Bytes returns the blob argument. The slice aliases the exec buffer and is
// only valid until the method returns.
func (a Args) Bytes(name string) ([]byte, error) {
	return a.slot(name, ArgBytes)
}

// Put* write a value at the argument's offset, little-endian. Methods use them
// to hand results back through the buffer.

func (a Args) PutUint8(name string, v uint8) error {
	b, err := a.slot(name, ArgUint8)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (a Args) PutInt8(name string, v int8) error {
	b, err := a.slot(name, ArgInt8)
	if err != nil {
		return err
	}
	b[0] = byte(v)
	return nil
}

func (a Args) PutBool(name string, v bool) error {
	b, err := a.slot(name, ArgBool)
	if err != nil {
		return err
	}
	b[0] = 0
	if v {
		b[0] = 1
	}
	return nil
}

func (a Args) PutUint16(name string, v uint16) error {
	b, err := a.slot(name, ArgUint16)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

func (a Args) PutInt16(name string, v int16) error {
	b, err := a.slot(name, ArgInt16)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, uint16(v))
	return nil
}

func (a Args) PutUint32(name string, v uint32) error {
	b, err := a.slot(name, ArgUint32)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (a Args) PutInt32(name string, v int32) error {
	b, err := a.slot(name, ArgInt32)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
	return nil
}

func (a Args) PutFloat32(name string, v float32) error {
	b, err := a.slot(name, ArgFloat32)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return nil
}

func (a Args) PutBytes(name string, v []byte) error {
	b, err := a.slot(name, ArgBytes)
	if err != nil {
		return err
	}
	if len(v) > len(b) {
		return fmt.Errorf("argument %q holds %d bytes, got %d: %w", name, len(b), len(v), core.ErrInvalidArgument)
	}
	clear(b[copy(b, v):])
	return nil
}
