package model

// Interpreter is a loaded inference graph with one input and one output slot.
// Implementations reuse their slots between calls and are not safe for
// concurrent use.
type Interpreter interface {
	Input() TensorSpec
	Output() TensorSpec
	// Invoke copies input into the input slot, runs one forward pass and
	// returns the output slot. The returned slice may be overwritten by the
	// next call.
	Invoke(input []float32) ([]float32, error)
	Close() error
}
