package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veggie_predictions_total",
	Help: "Successful predictions by top class",
}, []string{"class"})

var PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veggie_prediction_errors_total",
	Help: "Failed prediction requests by error kind",
}, []string{"kind"})

var PreprocessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "veggie_preprocess_duration_seconds",
	Help:    "Time spent decoding and resizing uploads",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
})

var InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "veggie_inference_duration_seconds",
	Help:    "Time spent in model inference",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
})

var UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "veggie_upload_bytes",
	Help:    "Size of uploaded images",
	Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
})

var ModelLoaded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "veggie_model_loaded",
	Help: "1 once the classifier has been loaded and warmed up",
})
