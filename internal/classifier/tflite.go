package classifier

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/go-tflite"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// TFLiteClassifier runs a local image classification model. The
// interpreter is not safe for concurrent use, so calls are serialized.
type TFLiteClassifier struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	labels      []label
	width       int
	height      int
	log         logger.Logger
}

// NewTFLite loads the model and labels. threads <= 0 derives the thread
// count from the CPU.
func NewTFLite(modelPath, labelPath string, threads int) (*TFLiteClassifier, error) {
	start := time.Now()
	log := logger.Global().Module("classifier").With(logger.String("backend", "tflite"))

	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, modelError(err, modelPath, start)
	}
	lf, err := os.Open(labelPath)
	if err != nil {
		return nil, modelError(err, labelPath, start)
	}
	defer func() {
		_ = lf.Close()
	}()
	labels, err := parseLabels(lf)
	if err != nil {
		return nil, modelError(err, labelPath, start)
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, modelError(fmt.Errorf("cannot load TensorFlow Lite model"), modelPath, start)
	}

	threads = threadCount(threads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		log.Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, modelError(fmt.Errorf("cannot create interpreter"), modelPath, start)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, modelError(fmt.Errorf("tensor allocation failed"), modelPath, start)
	}

	// Expected input is NHWC with three channels.
	input := interpreter.GetInputTensor(0)
	if input.NumDims() != 4 || input.Dim(3) != 3 {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, modelError(fmt.Errorf("unsupported input shape with %d dims", input.NumDims()), modelPath, start)
	}

	c := &TFLiteClassifier{
		model:       model,
		options:     options,
		interpreter: interpreter,
		labels:      labels,
		height:      input.Dim(1),
		width:       input.Dim(2),
		log:         log,
	}
	log.Info("TFLite model loaded",
		logger.String("model", modelPath),
		logger.Int("labels", len(labels)),
		logger.Int("threads", threads),
		logger.Int("input_width", c.width),
		logger.Int("input_height", c.height),
		logger.Duration("elapsed", time.Since(start)))
	return c, nil
}

// threadCount returns configured when positive, otherwise the physical core
// count bounded by the CPUs available to the process.
func threadCount(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 {
		return min(configured, available)
	}
	if cores := cpuid.CPU.PhysicalCores; cores > 0 {
		return min(cores, available)
	}
	return max(available, 1)
}

// Classify runs the model on img and returns the top two labels allowed for
// crop.
func (c *TFLiteClassifier) Classify(ctx context.Context, img Image, crop string) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, failed(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	input := c.interpreter.GetInputTensor(0)
	if err := decodeToTensor(img.Data, input.Float32s(), c.width, c.height); err != nil {
		return Prediction{}, failed(err)
	}
	if status := c.interpreter.Invoke(); status != tflite.OK {
		return Prediction{}, failed(fmt.Errorf("tensor invoke failed: %v", status))
	}

	scores := extractPredictions(c.interpreter.GetOutputTensor(0))
	return topTwo(candidatesFor(c.labels, scores, crop))
}

func extractPredictions(tensor *tflite.Tensor) []float32 {
	size := tensor.Dim(tensor.NumDims() - 1)
	predictions := make([]float32, size)
	copy(predictions, tensor.Float32s())
	return predictions
}

// Close releases the interpreter and model
func (c *TFLiteClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.options != nil {
		c.options.Delete()
		c.options = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
	return nil
}

func modelError(err error, path string, start time.Time) error {
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryModelLoad).
		Context("path", path).
		Timing("model-load", time.Since(start)).
		Build()
}
