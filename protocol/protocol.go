// Package protocol implements the line-oriented JSON interface to the
// inference engine: one request object in, one response object out.
package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"mediassist/inference"
	"mediassist/monitoring"
)

var ErrMalformedRequest = errors.New("malformed request")

// maxLineSize bounds a single serve-mode request line.
const maxLineSize = 1 << 20

type Request struct {
	Symptoms []string `json:"symptoms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Recorder persists served predictions. Failures are logged, never returned
// to the caller.
type Recorder interface {
	RecordPrediction(ctx context.Context, symptoms []string, p *inference.Prediction) error
}

// DecodeRequest requires a single JSON object. A missing or null symptoms
// field is an empty set; anything other than a list of strings is rejected.
func DecodeRequest(data []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedRequest)
	}
	req := &Request{}
	raw, ok := fields["symptoms"]
	if !ok {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req.Symptoms); err != nil {
		return nil, fmt.Errorf("%w: symptoms must be a list of strings", ErrMalformedRequest)
	}
	return req, nil
}

type Handler struct {
	predictor inference.Predictor
	recorder  Recorder
	metrics   *monitoring.MetricsCollector
	logger    *zap.Logger
}

type Option func(*Handler)

func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

func WithMetrics(m *monitoring.MetricsCollector) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func NewHandler(predictor inference.Predictor, opts ...Option) *Handler {
	h := &Handler{predictor: predictor, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle answers one raw request. The result is either a *Prediction or an
// ErrorResponse; panics are converted to ErrorResponse.
func (h *Handler) Handle(ctx context.Context, data []byte) (resp any) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling request", zap.Any("panic", r))
			h.observe(start, false)
			resp = ErrorResponse{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	req, err := DecodeRequest(data)
	if err != nil {
		h.logger.Warn("rejecting request", zap.Error(err))
		h.observe(start, false)
		return ErrorResponse{Error: err.Error()}
	}
	prediction, err := h.predictor.Predict(req.Symptoms)
	if err != nil {
		h.logger.Error("prediction failed", zap.Error(err))
		h.observe(start, false)
		return ErrorResponse{Error: err.Error()}
	}
	h.observe(start, true)

	if h.recorder != nil {
		if err := h.recorder.RecordPrediction(ctx, req.Symptoms, prediction); err != nil {
			h.logger.Warn("record prediction failed", zap.Error(err))
		}
	}
	h.logger.Debug("prediction served",
		zap.Int("symptoms", len(req.Symptoms)),
		zap.String("predicted", prediction.Predicted),
		zap.Float64("confidence", prediction.Confidence))
	return prediction
}

func (h *Handler) observe(start time.Time, ok bool) {
	if h.metrics == nil {
		return
	}
	if ok {
		h.metrics.IncCounter(monitoring.MetricPredictions)
	} else {
		h.metrics.IncCounter(monitoring.MetricRequestErrors)
	}
	h.metrics.ObserveDuration(monitoring.MetricPredictLatency, time.Since(start))
}

// ServeOnce reads all of r as one request and writes exactly one JSON value.
func (h *Handler) ServeOnce(ctx context.Context, r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return WriteJSON(w, ErrorResponse{Error: fmt.Sprintf("read request: %v", err)})
	}
	return WriteJSON(w, h.Handle(ctx, data))
}

// Serve answers newline-delimited requests until r is exhausted or ctx is
// done. Blank lines are skipped.
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	out := bufio.NewWriter(w)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := WriteJSON(out, h.Handle(ctx, line)); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			WriteJSON(out, ErrorResponse{Error: fmt.Sprintf("%v: line exceeds %d bytes", ErrMalformedRequest, maxLineSize)})
			out.Flush()
		}
		return err
	}
	return nil
}

// WriteJSON writes v followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		payload, _ = json.Marshal(ErrorResponse{Error: fmt.Sprintf("encode response: %v", err)})
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
