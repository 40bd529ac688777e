package bodkin

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/float16"
)

// DType tags the element type of a Buffer. Half precision inputs accumulate
// in float32 inside the kernels; float32 inputs accumulate in float32.
type DType uint8

const (
	Float16 DType = iota
	Float32
	dtypeCount
)

func (d DType) String() string {
	switch d {
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Buffer wraps a caller-owned flat tensor stored contiguous and row-major.
// The kernels borrow it for the duration of one launch and write only to
// their designated output; nothing is retained across launches.
type Buffer struct {
	dtype DType
	f16   []float16.Num
	f32   []float32
}

// NewFloat32Buffer wraps data without copying.
func NewFloat32Buffer(data []float32) Buffer {
	return Buffer{dtype: Float32, f32: data}
}

// NewFloat16Buffer wraps data without copying.
func NewFloat16Buffer(data []float16.Num) Buffer {
	return Buffer{dtype: Float16, f16: data}
}

// MakeBuffer allocates a zeroed buffer of n elements.
func MakeBuffer(dtype DType, n int) Buffer {
	switch dtype {
	case Float16:
		return NewFloat16Buffer(make([]float16.Num, n))
	case Float32:
		return NewFloat32Buffer(make([]float32, n))
	}
	panic("bodkin: unsupported dtype " + dtype.String())
}

func (b Buffer) DType() DType {
	return b.dtype
}

func (b Buffer) Len() int {
	if b.dtype == Float16 {
		return len(b.f16)
	}
	return len(b.f32)
}

// Float32s returns the backing slice of a Float32 buffer, nil otherwise.
func (b Buffer) Float32s() []float32 {
	return b.f32
}

// Float16s returns the backing slice of a Float16 buffer, nil otherwise.
func (b Buffer) Float16s() []float16.Num {
	return b.f16
}

// At reads element i widened to float32.
func (b Buffer) At(i int) float32 {
	if b.dtype == Float16 {
		return b.f16[i].Float32()
	}
	return b.f32[i]
}

// Set stores v at element i, narrowing for half precision buffers.
func (b Buffer) Set(i int, v float32) {
	if b.dtype == Float16 {
		b.f16[i] = float16.New(v)
		return
	}
	b.f32[i] = v
}
