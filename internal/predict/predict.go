// Package predict turns uploaded image bytes into a ranked list of
// vegetable classes.
package predict

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Brownie44l1/veggie-api/internal/config"
	"github.com/Brownie44l1/veggie-api/internal/imageproc"
	"github.com/Brownie44l1/veggie-api/internal/metrics"
	"github.com/Brownie44l1/veggie-api/internal/model"
	"github.com/Brownie44l1/veggie-api/internal/vocab"
)

// TopK is the number of classes returned per prediction.
const TopK = 5

var tracer = otel.Tracer("github.com/Brownie44l1/veggie-api/internal/predict")

// Source hands out the loaded model, if any.
type Source interface {
	Current() (model.Model, bool)
}

// Prediction is one ranked class.
type Prediction struct {
	Class       string  `json:"class"`
	Emoji       string  `json:"emoji"`
	Probability float64 `json:"probability"`
	Percentage  float64 `json:"percentage"`
}

// Result is the outcome of a successful prediction. Top duplicates
// Predictions[0].
type Result struct {
	Predictions []Prediction `json:"predictions"`
	Top         Prediction   `json:"top_prediction"`
}

// Predictor validates uploads, preprocesses them and ranks model output.
type Predictor struct {
	models     Source
	logger     *zap.Logger
	maxBytes   int
	preprocess func([]byte) (*imageproc.Tensor, error)
}

// New returns a Predictor that reads its model from models.
func New(models Source, logger *zap.Logger) *Predictor {
	return &Predictor{
		models:     models,
		logger:     logger.Named("predict"),
		maxBytes:   config.MaxUploadBytes,
		preprocess: imageproc.Preprocess,
	}
}

// Ready reports whether a model is loaded.
func (p *Predictor) Ready() bool {
	_, ok := p.models.Current()
	return ok
}

// MaxBytes is the largest accepted upload.
func (p *Predictor) MaxBytes() int {
	return p.maxBytes
}

// Predict classifies raw image bytes. Every failure is returned as an *Error.
func (p *Predictor) Predict(ctx context.Context, raw []byte) (res *Result, err error) {
	m, ok := p.models.Current()
	if !ok {
		return nil, Errorf(ModelNotReady, "model is not loaded yet")
	}
	if len(raw) > p.maxBytes {
		return nil, Errorf(PayloadTooLarge, "upload is %d bytes, limit is %d", len(raw), p.maxBytes)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered panic during prediction", zap.Any("panic", r))
			res, err = nil, Errorf(PredictionFailed, "panic: %v", r)
		}
	}()

	input, err := p.runPreprocess(ctx, raw)
	if err != nil {
		return nil, &Error{Kind: InvalidImage, Err: err}
	}

	scores, err := p.runInference(ctx, m, input.Data)
	if err != nil {
		return nil, &Error{Kind: PredictionFailed, Err: err}
	}

	preds, err := rank(scores, TopK)
	if err != nil {
		return nil, &Error{Kind: PredictionFailed, Err: err}
	}

	top := preds[0]
	metrics.PredictionsTotal.WithLabelValues(top.Class).Inc()
	p.logger.Info("prediction",
		zap.String("class", top.Class),
		zap.Float64("percentage", top.Percentage),
	)

	return &Result{Predictions: preds, Top: top}, nil
}

func (p *Predictor) runPreprocess(ctx context.Context, raw []byte) (*imageproc.Tensor, error) {
	_, span := tracer.Start(ctx, "preprocess")
	defer span.End()
	span.SetAttributes(attribute.Int("bytes", len(raw)))

	start := time.Now()
	t, err := p.preprocess(raw)
	metrics.PreprocessDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "preprocess failed")
		return nil, err
	}
	p.logger.Debug("preprocessed image",
		zap.Int64s("shape", t.Shape),
		zap.Duration("took", time.Since(start)),
	)
	return t, nil
}

func (p *Predictor) runInference(ctx context.Context, m model.Model, input []float32) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "infer")
	defer span.End()

	start := time.Now()
	scores, err := m.Infer(ctx, input)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		return nil, err
	}
	return scores, nil
}

// rank orders scores descending and maps the first k to vocabulary entries.
// Equal scores keep vocabulary order.
func rank(scores []float32, k int) ([]Prediction, error) {
	if len(scores) != vocab.Size {
		return nil, fmt.Errorf("model returned %d scores, expected %d", len(scores), vocab.Size)
	}
	for i, s := range scores {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return nil, fmt.Errorf("model returned invalid probability %v at index %d", s, i)
		}
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Prediction, 0, k)
	for _, i := range idx[:k] {
		label, _ := vocab.Label(i)
		prob := float64(scores[i])
		out = append(out, Prediction{
			Class:       label,
			Emoji:       vocab.Symbol(label),
			Probability: prob,
			Percentage:  Percentage(prob),
		})
	}
	return out, nil
}

// Percentage converts a probability to a percentage rounded to two decimal
// places, halves away from zero.
func Percentage(prob float64) float64 {
	return math.Round(prob*100*100) / 100
}
