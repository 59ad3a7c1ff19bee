package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Brownie44l1/veggie-api/internal/config"
	"github.com/Brownie44l1/veggie-api/internal/metrics"
	"github.com/Brownie44l1/veggie-api/internal/predict"
	"github.com/Brownie44l1/veggie-api/internal/vocab"
)

// formField is the multipart field carrying the upload.
const formField = "image"

// multipartSlack is the allowance for multipart framing on top of the file
// size cap when bounding the request body.
const multipartSlack = 1 << 20

// Predictor is the prediction pipeline the handlers drive.
type Predictor interface {
	Ready() bool
	MaxBytes() int
	Predict(ctx context.Context, raw []byte) (*predict.Result, error)
}

type Handler struct {
	predictor Predictor
	logger    *zap.Logger
}

func NewHandler(p Predictor, logger *zap.Logger) *Handler {
	return &Handler{
		predictor: p,
		logger:    logger.Named("http"),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type homeResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Classes     int    `json:"classes"`
	ImageSize   [2]int `json:"image_size"`
}

type classesResponse struct {
	Classes []vocab.Class `json:"classes"`
	Total   int           `json:"total"`
}

type predictResponse struct {
	Success bool `json:"success"`
	*predict.Result
}

// Home is the liveness probe.
func (h *Handler) Home(c echo.Context) error {
	return c.JSON(http.StatusOK, homeResponse{
		Status:      "ok",
		Message:     "Vegetable Classifier API is running",
		ModelLoaded: h.predictor.Ready(),
		Version:     config.Version,
	})
}

// Health reports readiness details.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:      "healthy",
		ModelLoaded: h.predictor.Ready(),
		Classes:     vocab.Size,
		ImageSize:   [2]int{config.ImageSize, config.ImageSize},
	})
}

// Classes lists the full vocabulary with display symbols.
func (h *Handler) Classes(c echo.Context) error {
	classes := vocab.Classes()
	return c.JSON(http.StatusOK, classesResponse{
		Classes: classes,
		Total:   len(classes),
	})
}

// Predict classifies the image uploaded in the "image" multipart field.
func (h *Handler) Predict(c echo.Context) error {
	if !h.predictor.Ready() {
		return h.fail(c, predict.Errorf(predict.ModelNotReady, "model is not loaded yet"))
	}

	raw, err := h.readUpload(c)
	if err != nil {
		return h.fail(c, err)
	}
	metrics.UploadBytes.Observe(float64(len(raw)))

	result, err := h.predictor.Predict(c.Request().Context(), raw)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, predictResponse{Success: true, Result: result})
}

// readUpload returns the uploaded file's bytes, reading at most one byte past
// the size cap so oversized uploads are detected without buffering them.
func (h *Handler) readUpload(c echo.Context) ([]byte, error) {
	req := c.Request()
	limit := int64(h.predictor.MaxBytes())
	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit+multipartSlack)

	fh, err := c.FormFile(formField)
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return nil, predict.Errorf(predict.PayloadTooLarge, "request body exceeds %d bytes", tooBig.Limit)
		case errors.Is(err, http.ErrMissingFile) && req.MultipartForm != nil && len(req.MultipartForm.Value[formField]) > 0:
			// Browsers send an empty filename when nothing was selected,
			// which multipart parsing turns into a plain value.
			return nil, predict.Errorf(predict.EmptyFile, "no file selected")
		default:
			return nil, &predict.Error{Kind: predict.MissingFile, Err: err}
		}
	}
	if fh.Filename == "" {
		return nil, predict.Errorf(predict.EmptyFile, "no file selected")
	}
	if fh.Size > limit {
		return nil, predict.Errorf(predict.PayloadTooLarge, "upload is %d bytes, limit is %d", fh.Size, limit)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, &predict.Error{Kind: predict.PredictionFailed, Err: fmt.Errorf("open upload: %w", err)}
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, &predict.Error{Kind: predict.PredictionFailed, Err: fmt.Errorf("read upload: %w", err)}
	}
	if len(raw) == 0 {
		return nil, predict.Errorf(predict.EmptyFile, "uploaded file %q is empty", fh.Filename)
	}

	h.logger.Debug("received upload", zap.String("filename", fh.Filename), zap.Int("bytes", len(raw)))
	return raw, nil
}

// fail writes the JSON error body for err and records it.
func (h *Handler) fail(c echo.Context, err error) error {
	kind := predict.KindOf(err)
	status := StatusFor(kind)
	metrics.PredictionErrors.WithLabelValues(kind.String()).Inc()

	if status >= http.StatusInternalServerError {
		h.logger.Error("prediction failed", zap.String("kind", kind.String()), zap.Error(err))
	} else {
		h.logger.Warn("prediction rejected", zap.String("kind", kind.String()), zap.Error(err))
	}

	return c.JSON(status, errorResponse{
		Error:   kind.String(),
		Message: messageFor(kind, err),
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k predict.Kind) int {
	switch k {
	case predict.ModelNotReady:
		return http.StatusServiceUnavailable
	case predict.MissingFile, predict.EmptyFile, predict.PayloadTooLarge:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(k predict.Kind, err error) string {
	switch k {
	case predict.ModelNotReady:
		return "Server is starting up, please try again"
	case predict.MissingFile:
		return "Please upload an image file using the 'image' form field"
	case predict.EmptyFile:
		return "Please select an image file"
	case predict.PayloadTooLarge:
		return fmt.Sprintf("Maximum file size is %dMB", config.MaxUploadBytes>>20)
	default:
		var pe *predict.Error
		if errors.As(err, &pe) && pe.Err != nil {
			return pe.Err.Error()
		}
		return err.Error()
	}
}
