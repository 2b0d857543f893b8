package config

import (
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Host        string
	Port        string
	ModelPath   string
	LabelsPath  string
	NumThreads  int
	ONNXLibPath string
	// EstimateSeed makes microplastics estimates reproducible when set.
	EstimateSeed *uint64
	MaxBodyBytes int64
	MaxPixels    int
	LogLevel     zapcore.Level
	Development  bool
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// LoadDotenv loads files (default .env and .env.local) into the environment,
// skipping any that do not exist. Variables already set are kept.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load parses args, using environment variables as flag defaults.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	threads, err := strconv.Atoi(envOr("MODEL_THREADS", "1"))
	if err != nil {
		return nil, errors.Wrap(err, "MODEL_THREADS")
	}
	maxBody, err := strconv.ParseInt(envOr("MAX_BODY_BYTES", strconv.Itoa(20<<20)), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "MAX_BODY_BYTES")
	}
	pixels, err := strconv.Atoi(envOr("MAX_IMAGE_PIXELS", "50000000"))
	if err != nil {
		return nil, errors.Wrap(err, "MAX_IMAGE_PIXELS")
	}

	host := fs.String("host", envOr("HOST", "0.0.0.0"), "listen host")
	port := fs.String("port", envOr("PORT", "5000"), "listen port")
	modelPath := fs.String("model", envOr("MODEL_PATH", "food101_model.tflite"), "model file (.tflite or .onnx)")
	labelsPath := fs.String("labels", envOr("LABELS_PATH", "labels.txt"), "newline-delimited label file")
	numThreads := fs.Int("threads", threads, "interpreter threads")
	onnxLib := fs.String("onnx-lib", os.Getenv("ONNXRUNTIME_LIB"), "onnxruntime shared library path")
	seed := fs.String("estimate-seed", os.Getenv("ESTIMATE_SEED"), "seed for reproducible microplastics estimates")
	maxBodyBytes := fs.Int64("max-body", maxBody, "maximum request body size in bytes")
	maxPixels := fs.Int("max-pixels", pixels, "maximum decoded image area in pixels")
	logLevel := fs.String("log-level", envOr("LOG_LEVEL", "info"), "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Host:         *host,
		Port:         *port,
		ModelPath:    *modelPath,
		LabelsPath:   *labelsPath,
		NumThreads:   *numThreads,
		ONNXLibPath:  *onnxLib,
		MaxBodyBytes: *maxBodyBytes,
		MaxPixels:    *maxPixels,
		Development:  os.Getenv("APP_ENV") == "development",
	}

	if p, err := strconv.Atoi(cfg.Port); err != nil || p < 0 || p > 65535 {
		return nil, errors.Errorf("invalid port %q", cfg.Port)
	}
	if cfg.NumThreads < 1 {
		return nil, errors.Errorf("threads must be at least 1, got %d", cfg.NumThreads)
	}
	if cfg.MaxBodyBytes <= 0 {
		return nil, errors.Errorf("max body must be positive, got %d", cfg.MaxBodyBytes)
	}
	if cfg.MaxPixels <= 0 {
		return nil, errors.Errorf("max pixels must be positive, got %d", cfg.MaxPixels)
	}
	if cfg.LogLevel, err = zapcore.ParseLevel(*logLevel); err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	if *seed != "" {
		s, err := strconv.ParseUint(*seed, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "estimate seed")
		}
		cfg.EstimateSeed = &s
	}

	return cfg, nil
}
