package model

import (
	"context"
	"fmt"
)

// Model is a loaded classifier that maps one preprocessed input tensor to a
// vector of class scores.
type Model interface {
	Infer(ctx context.Context, input []float32) ([]float32, error)
}

// Info describes the tensors a loaded model declares.
type Info struct {
	InputName   string
	OutputName  string
	InputShape  []int64
	OutputShape []int64
}

// Stage names the step of loading that failed.
type Stage string

const (
	StageOpen    Stage = "open"
	StageRuntime Stage = "runtime"
	StageInspect Stage = "inspect"
	StageShape   Stage = "shape"
	StageSession Stage = "session"
	StageWarmup  Stage = "warmup"
)

// LoadError is returned when the model artifact cannot be loaded.
type LoadError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s (%s): %v", e.Path, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
