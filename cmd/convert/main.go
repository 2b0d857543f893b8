// Command convert exports a placeholder TensorFlow.js layers model with the
// same input and output shapes as a TFLite or ONNX food model.
//
// Weights are not translated. The output is shape-compatible with the mobile
// runtime but does not reproduce the source model's predictions.
package main

import (
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plasty-api/internal/engine"
	"github.com/Brownie44l1/plasty-api/internal/logging"
	"github.com/Brownie44l1/plasty-api/internal/tfjs"
)

func main() {
	modelPath := flag.String("model", "food101_model.tflite", "source model (.tflite or .onnx)")
	outDir := flag.String("out", "../PlasticAI/assets", "output directory for model.json and weights")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "seed for placeholder weights")
	onnxLib := flag.String("onnx-lib", "", "onnxruntime shared library path")
	flag.Parse()

	log, err := logging.New(zap.InfoLevel, true)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Converting model", zap.String("model", *modelPath), zap.String("out", *outDir))

	interp, err := engine.Open(*modelPath, engine.Options{ONNXLibPath: *onnxLib})
	if err != nil {
		log.Fatal("Failed to load model", zap.Error(err))
	}
	in, out := interp.Input(), interp.Output()
	interp.Close()
	engine.Shutdown()

	log.Info("Model shapes", zap.Int64s("input", in.Shape), zap.Int64s("output", out.Shape))

	placeholder, err := tfjs.NewPlaceholder(in.Shape, out.Size(), *seed)
	if err != nil {
		log.Fatal("Failed to build placeholder model", zap.Error(err))
	}
	if err := placeholder.Write(*outDir); err != nil {
		log.Fatal("Failed to write model", zap.Error(err))
	}

	log.Info("Model converted",
		zap.String("model_json", tfjs.ModelFile),
		zap.String("weights", tfjs.WeightsFile),
		zap.String("dir", *outDir),
	)
	log.Warn("Exported weights are placeholders and do not match the source model")
}
