package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// ortEnv guards the process-wide ONNX Runtime environment.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ShutdownRuntime releases the ONNX Runtime environment. Call once, after
// every Classifier has been closed.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Options configures Load.
type Options struct {
	ModelPath      string
	RuntimeLibPath string
	IntraOpThreads int

	ImageSize  int
	Channels   int
	NumClasses int
}

// Classifier runs an ONNX image classifier. It is safe for concurrent use:
// every call to Infer allocates its own tensors.
type Classifier struct {
	session *ort.DynamicAdvancedSession
	info    Info
	opts    Options
}

// Load reads the model artifact, checks its declared tensor shapes against
// opts, and runs a single warm-up inference on zeros.
func Load(opts Options, logger *zap.Logger) (*Classifier, error) {
	logger = logger.Named("model")
	logger.Info("loading model", zap.String("path", opts.ModelPath))

	c, err := load(opts)
	if err != nil {
		logger.Error("failed to load model", zap.String("path", opts.ModelPath), zap.Error(err))
		return nil, err
	}

	logger.Info("model loaded",
		zap.String("input", c.info.InputName),
		zap.Int64s("input_shape", c.info.InputShape),
		zap.String("output", c.info.OutputName),
		zap.Int64s("output_shape", c.info.OutputShape),
	)
	return c, nil
}

func load(opts Options) (*Classifier, error) {
	fail := func(stage Stage, err error) error {
		return &LoadError{Path: opts.ModelPath, Stage: stage, Err: err}
	}

	st, err := os.Stat(opts.ModelPath)
	if err != nil {
		return nil, fail(StageOpen, err)
	}
	if st.IsDir() {
		return nil, fail(StageOpen, errors.New("model path is a directory"))
	}

	if err := initORT(opts.RuntimeLibPath); err != nil {
		return nil, fail(StageRuntime, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fail(StageInspect, err)
	}

	info, err := checkShapes(inputs, outputs, opts)
	if err != nil {
		return nil, fail(StageShape, err)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fail(StageSession, err)
	}
	defer sessOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fail(StageSession, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath,
		[]string{info.InputName}, []string{info.OutputName}, sessOpts)
	if err != nil {
		return nil, fail(StageSession, err)
	}

	c := &Classifier{session: session, info: info, opts: opts}

	// Surfaces lazy initialization and shape problems before serving.
	warm := make([]float32, opts.ImageSize*opts.ImageSize*opts.Channels)
	if _, err := c.Infer(context.Background(), warm); err != nil {
		session.Destroy()
		return nil, fail(StageWarmup, err)
	}

	return c, nil
}

// checkShapes validates the model's declared tensors. Dimensions of -1 (or
// other non-positive values) are dynamic and accepted.
func checkShapes(inputs, outputs []ort.InputOutputInfo, opts Options) (Info, error) {
	if len(inputs) != 1 {
		return Info{}, fmt.Errorf("expected 1 input tensor, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return Info{}, errors.New("model has no outputs")
	}
	in, out := inputs[0], outputs[0]

	wantIn := []int64{1, int64(opts.ImageSize), int64(opts.ImageSize), int64(opts.Channels)}
	if !shapeMatches(in.Dimensions, wantIn) {
		return Info{}, fmt.Errorf("input %q has shape %v, want %v", in.Name, in.Dimensions, wantIn)
	}
	wantOut := []int64{1, int64(opts.NumClasses)}
	if !shapeMatches(out.Dimensions, wantOut) {
		return Info{}, fmt.Errorf("output %q has shape %v, want %v", out.Name, out.Dimensions, wantOut)
	}

	return Info{
		InputName:   in.Name,
		OutputName:  out.Name,
		InputShape:  []int64(in.Dimensions),
		OutputShape: []int64(out.Dimensions),
	}, nil
}

func shapeMatches(got ort.Shape, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i, d := range got {
		if d > 0 && d != want[i] {
			return false
		}
	}
	return true
}

// Infer runs the model on one NHWC input and returns the class scores.
func (c *Classifier) Infer(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := int64(c.opts.ImageSize)
	inShape := ort.NewShape(1, size, size, int64(c.opts.Channels))
	if int64(len(input)) != inShape.FlattenedSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", inShape.FlattenedSize(), len(input))
	}

	tIn, err := ort.NewTensor(inShape, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.opts.NumClasses)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := c.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// Copy out before the tensor is destroyed.
	src := tOut.GetData()
	scores := make([]float32, len(src))
	copy(scores, src)
	return scores, nil
}

// Close releases the inference session.
func (c *Classifier) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Destroy()
}
