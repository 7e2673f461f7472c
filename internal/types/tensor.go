package types

// Tensor is a dense float32 array with an explicit shape. A nil or empty
// shape denotes a scalar with a single element. Data is stored row-major.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// NewTensor allocates a zero-filled tensor with the given shape.
func NewTensor(shape ...int) Tensor {
	return Tensor{
		Shape: shape,
		Data:  make([]float32, NumElements(shape)),
	}
}

// NumElements returns the element count implied by a shape.
// The empty shape is a scalar, so the product starts at one.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements in the tensor.
func (t Tensor) Len() int {
	return len(t.Data)
}

// Clone returns a deep copy of the tensor.
func (t Tensor) Clone() Tensor {
	out := Tensor{
		Shape: make([]int, len(t.Shape)),
		Data:  make([]float32, len(t.Data)),
	}
	copy(out.Shape, t.Shape)
	copy(out.Data, t.Data)
	return out
}

// Zero sets every element to zero in place.
func (t Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// ShapeEqual reports whether two shapes describe the same layout.
func ShapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two tensors have identical shape and data.
func (t Tensor) Equal(o Tensor) bool {
	if !ShapeEqual(t.Shape, o.Shape) {
		return false
	}
	for i := range t.Data {
		if t.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}
