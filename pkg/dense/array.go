// Package dense holds the row-major N-dimensional arrays exchanged with the
// projection engine.
package dense

import (
	"errors"
	"fmt"
)

// ErrShape is returned for invalid shapes and out-of-bounds indexes.
var ErrShape = errors.New("dense: bad shape or index")

// Array is a dense float64 array stored in row-major order: the last axis
// varies fastest.
type Array struct {
	shape   []int
	strides []int
	data    []float64
}

// New returns a zero-filled array of the given shape.
func New(shape ...int) (*Array, error) {
	size, err := sizeOf(shape)
	if err != nil {
		return nil, err
	}
	return build(shape, make([]float64, size)), nil
}

// FromSlice wraps data, which must hold exactly the product of shape values.
// The array takes ownership of data.
func FromSlice(data []float64, shape ...int) (*Array, error) {
	size, err := sizeOf(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
	}
	return build(shape, data), nil
}

func sizeOf(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: rank zero", ErrShape)
	}
	size := 1
	for i, n := range shape {
		if n < 1 {
			return 0, fmt.Errorf("%w: axis %d has extent %d", ErrShape, i, n)
		}
		size *= n
	}
	return size, nil
}

func build(shape []int, data []float64) *Array {
	s := append([]int(nil), shape...)
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return &Array{shape: s, strides: strides, data: data}
}

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.shape) }

// Dim returns the extent of axis i.
func (a *Array) Dim(i int) int { return a.shape[i] }

// Shape returns a copy of the extents.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Strides returns the flat step of each axis.
func (a *Array) Strides() []int { return append([]int(nil), a.strides...) }

// Len returns the number of cells.
func (a *Array) Len() int { return len(a.data) }

// Data exposes the backing slice in row-major order.
func (a *Array) Data() []float64 { return a.data }

// Offset returns the flat position of idx.
func (a *Array) Offset(idx ...int) (int, error) {
	if len(idx) != len(a.shape) {
		return 0, fmt.Errorf("%w: %d indexes for rank %d", ErrShape, len(idx), len(a.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			return 0, fmt.Errorf("%w: index %d out of [0,%d) on axis %d", ErrShape, v, a.shape[i], i)
		}
		off += v * a.strides[i]
	}
	return off, nil
}

// At returns the value at idx.
func (a *Array) At(idx ...int) (float64, error) {
	off, err := a.Offset(idx...)
	if err != nil {
		return 0, err
	}
	return a.data[off], nil
}

// Set stores v at idx.
func (a *Array) Set(v float64, idx ...int) error {
	off, err := a.Offset(idx...)
	if err != nil {
		return err
	}
	a.data[off] = v
	return nil
}
