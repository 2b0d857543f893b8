package engine

import (
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plasty-api/internal/model"
)

var ortInit sync.Mutex

// ONNX wraps an onnxruntime session with preallocated input and output tensors.
type ONNX struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	input  model.TensorSpec
	output model.TensorSpec
}

func initEnvironment(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX environment")
	}
	return nil
}

func OpenONNX(path string, opts Options) (*ONNX, error) {
	if err := initEnvironment(opts.ONNXLibPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read model inputs and outputs")
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("model has no input or output")
	}
	in, out := inputs[0], outputs[0]
	for _, info := range []ort.InputOutputInfo{in, out} {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, errors.Errorf("tensor %q: unsupported element type %v", info.Name, info.DataType)
		}
	}

	o := &ONNX{
		input:  model.TensorSpec{Name: in.Name, Shape: pinBatch(in.Dimensions)},
		output: model.TensorSpec{Name: out.Name, Shape: pinBatch(out.Dimensions)},
	}

	o.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(o.input.Shape...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}

	o.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(o.output.Shape...))
	if err != nil {
		o.Close()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	var sessionOpts *ort.SessionOptions
	if opts.NumThreads > 0 {
		sessionOpts, err = ort.NewSessionOptions()
		if err != nil {
			o.Close()
			return nil, errors.Wrap(err, "failed to create session options")
		}
		defer sessionOpts.Destroy()
		if err := sessionOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			o.Close()
			return nil, errors.Wrap(err, "failed to set thread count")
		}
	}

	o.session, err = ort.NewAdvancedSession(path,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{o.inputTensor}, []ort.ArbitraryTensor{o.outputTensor},
		sessionOpts)
	if err != nil {
		o.Close()
		return nil, errors.Wrap(err, "failed to create ONNX session")
	}

	zap.L().Info("onnx model loaded",
		zap.String("path", path),
		zap.String("input", in.Name),
		zap.Int64s("input_shape", o.input.Shape),
		zap.String("output", out.Name),
		zap.Int64s("output_shape", o.output.Shape),
	)
	return o, nil
}

func (o *ONNX) Input() model.TensorSpec  { return o.input }
func (o *ONNX) Output() model.TensorSpec { return o.output }

func (o *ONNX) Invoke(input []float32) ([]float32, error) {
	copy(o.inputTensor.GetData(), input)

	if err := o.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	return o.outputTensor.GetData(), nil
}

// Close releases the session and tensors. The shared onnxruntime environment
// stays up for the life of the process.
func (o *ONNX) Close() error {
	if o.inputTensor != nil {
		o.inputTensor.Destroy()
		o.inputTensor = nil
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
		o.outputTensor = nil
	}
	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	return nil
}

// Shutdown tears down the onnxruntime environment if it was initialized.
func Shutdown() {
	ortInit.Lock()
	defer ortInit.Unlock()
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			zap.L().Warn("destroy onnx environment", zap.Error(err))
		}
	}
}
