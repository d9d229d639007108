// Package method implements the string-keyed method dispatcher used by
// pipeline elements to expose parameter setters.
//
// A Method pairs a name with a typed argument schema. Callers look the method
// up by name, prepare an execution buffer laid out by the schema, fill it with
// the typed setters of ExecContext and invoke the method. The buffer is
// returned to a pool on Release; Invoke wraps the whole sequence and releases
// on every exit path.
package method

import (
	"fmt"
	"slices"

	"github.com/Swind/go-media-task/core"
)

// ArgType is the discriminant of an argument layout.
type ArgType uint8

const (
	ArgUint8 ArgType = iota + 1
	ArgInt8
	ArgUint16
	ArgInt16
	ArgUint32
	ArgInt32
	ArgFloat32
	ArgBool
	// ArgBytes is an opaque fixed-size blob; its size comes from Arg.Size.
	ArgBytes
)

func (t ArgType) String() string {
	switch t {
	case ArgUint8:
		return "u8"
	case ArgInt8:
		return "i8"
	case ArgUint16:
		return "u16"
	case ArgInt16:
		return "i16"
	case ArgUint32:
		return "u32"
	case ArgInt32:
		return "i32"
	case ArgFloat32:
		return "f32"
	case ArgBool:
		return "bool"
	case ArgBytes:
		return "bytes"
	default:
		return fmt.Sprintf("ArgType(%d)", uint8(t))
	}
}

// size returns the encoded width of scalar types, 0 for ArgBytes and unknown types.
func (t ArgType) size() int {
	switch t {
	case ArgUint8, ArgInt8, ArgBool:
		return 1
	case ArgUint16, ArgInt16:
		return 2
	case ArgUint32, ArgInt32, ArgFloat32:
		return 4
	default:
		return 0
	}
}

// Arg declares one argument when building a Method.
type Arg struct {
	Name string
	Type ArgType
	// Size is only read for ArgBytes.
	Size int
}

// U8 and friends are shorthands for scalar argument declarations.
func U8(name string) Arg      { return Arg{Name: name, Type: ArgUint8} }
func I8(name string) Arg      { return Arg{Name: name, Type: ArgInt8} }
func U16(name string) Arg     { return Arg{Name: name, Type: ArgUint16} }
func I16(name string) Arg     { return Arg{Name: name, Type: ArgInt16} }
func U32(name string) Arg     { return Arg{Name: name, Type: ArgUint32} }
func I32(name string) Arg     { return Arg{Name: name, Type: ArgInt32} }
func F32(name string) Arg     { return Arg{Name: name, Type: ArgFloat32} }
func Bool(name string) Arg    { return Arg{Name: name, Type: ArgBool} }
func Blob(name string, size int) Arg {
	return Arg{Name: name, Type: ArgBytes, Size: size}
}

// ArgDesc is the resolved layout of one argument inside the exec buffer.
type ArgDesc struct {
	Name   string
	Type   ArgType
	Offset int
	Size   int
}

// Func is the implementation behind a Method. handle is the object the method
// is bound to (typically an element); args reads the filled exec buffer.
type Func func(handle any, args Args) error

// Method is a named entry of a List.
type Method struct {
	Name string
	Args []ArgDesc
	Func Func

	bufSize int
}

// New builds a Method, packing args back to back in declaration order.
func New(name string, fn Func, args ...Arg) (*Method, error) {
	if name == "" {
		return nil, fmt.Errorf("method name is empty: %w", core.ErrInvalidArgument)
	}
	if fn == nil {
		return nil, fmt.Errorf("method %q has nil func: %w", name, core.ErrInvalidArgument)
	}

	m := &Method{Name: name, Func: fn, Args: make([]ArgDesc, 0, len(args))}
	offset := 0
	for _, a := range args {
		size := a.Type.size()
		if a.Type == ArgBytes {
			size = a.Size
		}
		if a.Name == "" || size <= 0 {
			return nil, fmt.Errorf("method %q: argument %q of type %s: %w", name, a.Name, a.Type, core.ErrInvalidArgument)
		}
		if slices.ContainsFunc(m.Args, func(d ArgDesc) bool { return d.Name == a.Name }) {
			return nil, fmt.Errorf("method %q: duplicate argument %q: %w", name, a.Name, core.ErrInvalidArgument)
		}
		m.Args = append(m.Args, ArgDesc{Name: a.Name, Type: a.Type, Offset: offset, Size: size})
		offset += size
	}
	m.bufSize = offset
	return m, nil
}

// MustNew is New for package-level method tables; it panics on a bad schema.
func MustNew(name string, fn Func, args ...Arg) *Method {
	m, err := New(name, fn, args...)
	if err != nil {
		panic(err)
	}
	return m
}

// BufSize returns the exec buffer size, the sum of all argument sizes.
func (m *Method) BufSize() int { return m.bufSize }

// Arg returns the layout of the named argument.
func (m *Method) Arg(name string) (ArgDesc, error) {
	for _, d := range m.Args {
		if d.Name == name {
			return d, nil
		}
	}
	return ArgDesc{}, fmt.Errorf("method %q has no argument %q: %w", m.Name, name, core.ErrNotFound)
}

// List is an ordered method table. The zero value is an empty list.
// A List is meant to be built once and then only read; it is not safe for
// concurrent mutation.
type List struct {
	methods []*Method
}

// NewList builds a List from methods, rejecting duplicate names.
func NewList(methods ...*Method) (*List, error) {
	l := &List{}
	for _, m := range methods {
		if err := l.Add(m); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add appends m. Names are unique within a list.
func (l *List) Add(m *Method) error {
	if m == nil {
		return fmt.Errorf("nil method: %w", core.ErrInvalidArgument)
	}
	if _, err := l.Find(m.Name); err == nil {
		return fmt.Errorf("method %q already registered: %w", m.Name, core.ErrInvalidArgument)
	}
	l.methods = append(l.methods, m)
	return nil
}

// Find returns the method registered under name.
func (l *List) Find(name string) (*Method, error) {
	if l != nil {
		for _, m := range l.methods {
			if m.Name == name {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("method %q: %w", name, core.ErrNotFound)
}

// Names returns the method names in registration order.
func (l *List) Names() []string {
	if l == nil {
		return nil
	}
	names := make([]string, len(l.methods))
	for i, m := range l.methods {
		names[i] = m.Name
	}
	return names
}

// Len returns the number of methods.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.methods)
}
