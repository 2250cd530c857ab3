// Package tensor holds raw network outputs as flat float32 buffers with a shape.
// It is the single conversion point between the network runtime and the decoders.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kozaktomas/faceproc/internal/faceerr"
)

// Tensor is a row-major float32 buffer.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// New creates a tensor after checking that the shape matches the data length.
func New(shape []int, data []float32) (Tensor, error) {
	size, err := NumElements(shape)
	if err != nil {
		return Tensor{}, err
	}
	if size != len(data) {
		return Tensor{}, fmt.Errorf("cannot use %d values as shape %v: %w", len(data), shape, faceerr.ErrDimensionMismatch)
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// FromBytes decodes a little-endian float32 payload, as produced by inference servers.
func FromBytes(shape []int, raw []byte) (Tensor, error) {
	if len(raw)%4 != 0 {
		return Tensor{}, fmt.Errorf("payload of %d bytes is not a float32 buffer: %w", len(raw), faceerr.ErrDimensionMismatch)
	}
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
	}
	return New(shape, data)
}

// Bytes encodes the data as little-endian float32.
func (t Tensor) Bytes() []byte {
	out := make([]byte, len(t.Data)*4)
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// NumElements returns the product of the dimensions. Negative dimensions and
// products that overflow int are a DimensionMismatch.
func NumElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape: %w", faceerr.ErrDimensionMismatch)
	}
	n := 1
	for _, s := range shape {
		if s < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v: %w", shape, faceerr.ErrDimensionMismatch)
		}
		if s != 0 && n > math.MaxInt/s {
			return 0, fmt.Errorf("shape %v has too many elements: %w", shape, faceerr.ErrDimensionMismatch)
		}
		n *= s
	}
	return n, nil
}

// Rank returns the number of dimensions.
func (t Tensor) Rank() int {
	return len(t.Shape)
}

// Len returns the number of elements.
func (t Tensor) Len() int {
	return len(t.Data)
}

// IsZero reports whether the tensor was never set.
func (t Tensor) IsZero() bool {
	return t.Shape == nil && t.Data == nil
}

// Reshape returns a view with a different shape over the same data.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	return New(shape, t.Data)
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// At returns the element at the given index. It panics on out of range access like a slice would.
func (t Tensor) At(idx ...int) float32 {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d tensor", len(idx), len(t.Shape)))
	}
	offset := 0
	for i, v := range idx {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d of size %d", v, i, t.Shape[i]))
		}
		offset = offset*t.Shape[i] + v
	}
	return t.Data[offset]
}

// Rows splits a rank 2 tensor [N, K] into N slices of length K.
// The rows share memory with the tensor and must not be modified.
func (t Tensor) Rows() ([][]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("expected a 2D shape, got %dD shape %v: %w", len(t.Shape), t.Shape, faceerr.ErrDimensionMismatch)
	}
	n, k := t.Shape[0], t.Shape[1]
	rows := make([][]float32, n)
	for i := 0; i < n; i++ {
		rows[i] = t.Data[i*k : (i+1)*k : (i+1)*k]
	}
	return rows, nil
}

// Flatten2D collapses all leading dimensions so the tensor becomes [N, last].
func (t Tensor) Flatten2D() (Tensor, error) {
	if len(t.Shape) == 0 {
		return Tensor{}, fmt.Errorf("empty shape: %w", faceerr.ErrDimensionMismatch)
	}
	last := t.Shape[len(t.Shape)-1]
	if last == 0 {
		return New([]int{0, 0}, t.Data)
	}
	return New([]int{len(t.Data) / last, last}, t.Data)
}
