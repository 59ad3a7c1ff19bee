package model

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const testModelPath = "../../models/vegetable_classifier.onnx"

func testOptions(path string) Options {
	return Options{
		ModelPath:      path,
		RuntimeLibPath: os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"),
		ImageSize:      128,
		Channels:       3,
		NumClasses:     15,
	}
}

type fakeModel struct{ id int }

func (f *fakeModel) Infer(context.Context, []float32) ([]float32, error) { return nil, nil }

func TestOnce_LoadsOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	want := &fakeModel{id: 7}
	o := NewOnce(func() (Model, error) {
		calls.Add(1)
		return want, nil
	})

	if _, ok := o.Current(); ok {
		t.Fatal("expected no model before Load")
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := o.Load()
			if err != nil {
				t.Errorf("load failed: %v", err)
				return
			}
			if m != want {
				t.Errorf("got a different model instance")
			}
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 load call, got %d", n)
	}
	if m, ok := o.Current(); !ok || m != want {
		t.Fatal("expected Current to return the loaded model")
	}
}

func TestOnce_RetryAfterFailure(t *testing.T) {
	attempts := 0
	o := NewOnce(func() (Model, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("disk not ready")
		}
		return &fakeModel{}, nil
	})

	if _, err := o.Load(); err == nil {
		t.Fatal("expected first load to fail")
	}
	if _, ok := o.Current(); ok {
		t.Fatal("failed load must not publish a model")
	}
	if _, err := o.Load(); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if _, ok := o.Current(); !ok {
		t.Fatal("expected model after successful retry")
	}
	if _, err := o.Load(); err != nil || attempts != 2 {
		t.Fatalf("expected no further attempts, got %d (err %v)", attempts, err)
	}
}

func TestReady(t *testing.T) {
	m := &fakeModel{}
	o := Ready(m)
	got, ok := o.Current()
	if !ok || got != m {
		t.Fatal("Ready should hold the given model")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.onnx")
	_, err := Load(testOptions(path), zap.NewNop())

	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %T: %v", err, err)
	}
	if le.Stage != StageOpen {
		t.Fatalf("expected stage %q, got %q", StageOpen, le.Stage)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoad_Directory(t *testing.T) {
	_, err := Load(testOptions(t.TempDir()), zap.NewNop())
	var le *LoadError
	if !errors.As(err, &le) || le.Stage != StageOpen {
		t.Fatalf("expected open-stage LoadError, got %v", err)
	}
}

func TestCheckShapes(t *testing.T) {
	opts := testOptions("")
	in := func(dims ...int64) []ort.InputOutputInfo {
		return []ort.InputOutputInfo{{Name: "input_1", Dimensions: ort.NewShape(dims...)}}
	}
	out := func(dims ...int64) []ort.InputOutputInfo {
		return []ort.InputOutputInfo{{Name: "dense", Dimensions: ort.NewShape(dims...)}}
	}

	tests := []struct {
		name    string
		inputs  []ort.InputOutputInfo
		outputs []ort.InputOutputInfo
		wantErr bool
	}{
		{"exact", in(1, 128, 128, 3), out(1, 15), false},
		{"dynamic batch", in(-1, 128, 128, 3), out(-1, 15), false},
		{"wrong size", in(1, 224, 224, 3), out(1, 15), true},
		{"channels first", in(1, 3, 128, 128), out(1, 15), true},
		{"wrong classes", in(1, 128, 128, 3), out(1, 10), true},
		{"rank mismatch", in(128, 128, 3), out(1, 15), true},
		{"no outputs", in(1, 128, 128, 3), nil, true},
		{"two inputs", append(in(1, 128, 128, 3), in(1)...), out(1, 15), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := checkShapes(tt.inputs, tt.outputs, opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.InputName != "input_1" || info.OutputName != "dense" {
				t.Fatalf("unexpected names: %+v", info)
			}
		})
	}
}

func skipIfNoModel(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(testModelPath); os.IsNotExist(err) {
		t.Skip("model file not found; export it to models/vegetable_classifier.onnx first")
	}
}

func TestClassifier_Infer(t *testing.T) {
	skipIfNoModel(t)

	c, err := Load(testOptions(testModelPath), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to load model: %v", err)
	}
	defer c.Close()

	input := make([]float32, 128*128*3)
	for i := range input {
		input[i] = 0.5
	}
	scores, err := c.Infer(context.Background(), input)
	if err != nil {
		t.Fatalf("inference failed: %v", err)
	}
	if len(scores) != 15 {
		t.Fatalf("expected 15 scores, got %d", len(scores))
	}

	var sum float32
	for _, s := range scores {
		sum += s
	}
	t.Logf("scores: %v (sum %.4f)", scores, sum)

	if _, err := c.Infer(context.Background(), input[:10]); err == nil {
		t.Fatal("expected error for short input")
	}
}
