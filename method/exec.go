package method

import (
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/Swind/go-media-task/core"
)

// MaxExecBufSize caps the exec buffer of a single method call. Preparing a
// method whose schema is larger fails with core.ErrOutOfMemory.
const MaxExecBufSize = 4096

var execPool bytebufferpool.Pool

// ExecContext holds a matched method and its zeroed exec buffer.
// An ExecContext is used by one goroutine at a time.
type ExecContext struct {
	method *Method
	buf    *bytebufferpool.ByteBuffer
}

// Prepare looks up name in list and allocates an exec buffer sized to the
// method's argument schema. The caller must Release the context.
func Prepare(list *List, name string) (*ExecContext, error) {
	m, err := list.Find(name)
	if err != nil {
		return nil, err
	}
	return PrepareMethod(m)
}

// PrepareMethod is Prepare for an already resolved method.
func PrepareMethod(m *Method) (*ExecContext, error) {
	if m == nil {
		return nil, fmt.Errorf("nil method: %w", core.ErrInvalidArgument)
	}
	size := m.BufSize()
	if size > MaxExecBufSize {
		return nil, fmt.Errorf("method %q needs %d bytes (max %d): %w", m.Name, size, MaxExecBufSize, core.ErrOutOfMemory)
	}

	ec := &ExecContext{method: m}
	if size > 0 {
		bb := execPool.Get()
		if cap(bb.B) < size {
			bb.B = make([]byte, size)
		}
		bb.B = bb.B[:size]
		clear(bb.B)
		ec.buf = bb
	}
	return ec, nil
}

// Method returns the matched method.
func (ec *ExecContext) Method() *Method { return ec.method }

// Buffer returns the exec buffer, nil for argument-less methods or after Release.
func (ec *ExecContext) Buffer() []byte {
	if ec.buf == nil {
		return nil
	}
	return ec.buf.B
}

// Release returns the buffer to the pool. It is safe to call more than once.
func (ec *ExecContext) Release() {
	if ec == nil || ec.buf == nil {
		return
	}
	execPool.Put(ec.buf)
	ec.buf = nil
}

// Exec calls the method with the current buffer contents.
func (ec *ExecContext) Exec(handle any) error {
	a, err := ec.args()
	if err != nil {
		return err
	}
	if err := ec.method.Func(handle, a); err != nil {
		return fmt.Errorf("method %q: %w", ec.method.Name, err)
	}
	return nil
}

// args returns the write view of the buffer, failing once released.
func (ec *ExecContext) args() (Args, error) {
	if ec.method.BufSize() > 0 && ec.buf == nil {
		return Args{}, fmt.Errorf("method %q: exec context released: %w", ec.method.Name, core.ErrInvalidState)
	}
	return Args{desc: ec.method.Args, buf: ec.Buffer()}, nil
}

// Args returns a view of the buffer, for reading values a method wrote back.
func (ec *ExecContext) Args() Args {
	return Args{desc: ec.method.Args, buf: ec.Buffer()}
}

func (ec *ExecContext) set(put func(Args) error) error {
	a, err := ec.args()
	if err != nil {
		return err
	}
	if err := put(a); err != nil {
		return fmt.Errorf("method %q: %w", ec.method.Name, err)
	}
	return nil
}

func (ec *ExecContext) SetUint8(name string, v uint8) error {
	return ec.set(func(a Args) error { return a.PutUint8(name, v) })
}

func (ec *ExecContext) SetInt8(name string, v int8) error {
	return ec.set(func(a Args) error { return a.PutInt8(name, v) })
}

func (ec *ExecContext) SetBool(name string, v bool) error {
	return ec.set(func(a Args) error { return a.PutBool(name, v) })
}

func (ec *ExecContext) SetUint16(name string, v uint16) error {
	return ec.set(func(a Args) error { return a.PutUint16(name, v) })
}

func (ec *ExecContext) SetInt16(name string, v int16) error {
	return ec.set(func(a Args) error { return a.PutInt16(name, v) })
}

func (ec *ExecContext) SetUint32(name string, v uint32) error {
	return ec.set(func(a Args) error { return a.PutUint32(name, v) })
}

func (ec *ExecContext) SetInt32(name string, v int32) error {
	return ec.set(func(a Args) error { return a.PutInt32(name, v) })
}

func (ec *ExecContext) SetFloat32(name string, v float32) error {
	return ec.set(func(a Args) error { return a.PutFloat32(name, v) })
}

// SetBytes copies v into a blob argument. v must not be longer than the blob;
// the remainder stays zero.
func (ec *ExecContext) SetBytes(name string, v []byte) error {
	return ec.set(func(a Args) error { return a.PutBytes(name, v) })
}

// Invoke prepares name from list, lets fill populate the buffer, executes the
// method on handle and releases the buffer on every path. fill may be nil for
// argument-less methods.
func Invoke(list *List, name string, handle any, fill func(ec *ExecContext) error) error {
	ec, err := Prepare(list, name)
	if err != nil {
		return err
	}
	defer ec.Release()

	if fill != nil {
		if err := fill(ec); err != nil {
			return fmt.Errorf("method %q: fill arguments: %w", name, err)
		}
	}
	return ec.Exec(handle)
}
