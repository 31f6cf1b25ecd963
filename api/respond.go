package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/vinayprograms/orchestrator/errors"
	"github.com/vinayprograms/orchestrator/telemetry"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	OK     bool              `json:"ok"`
	Error  string            `json:"error"`
	Code   errors.ErrorCode  `json:"code"`
	TaskID string            `json:"task_id,omitempty"`
	Meta   map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError maps a coded error to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := errors.Code(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	body := errorBody{Error: err.Error(), Code: code}
	if e := errors.As(err); e != nil {
		body.TaskID = e.TaskID()
		body.Meta = e.Metadata()
	}
	writeJSON(w, errors.HTTPStatus(code), body)
}

// decode reads a JSON body into v. An empty body leaves v untouched, so a
// bodiless POST reaches the service with zero-value fields and is rejected
// there as INVALID_INPUT (e.g. claim without a worker_id).
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.InvalidInput(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade on /events take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := telemetry.ExtractContext(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(rec, r.WithContext(ctx))
		s.logger.Request(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// recoverPanics turns a handler panic into a 500 with code PANIC.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			e := errors.RecoverPanic(v)
			s.logger.Error("handler_panic", map[string]interface{}{
				"path":  r.URL.Path,
				"panic": e.Message(),
			})
			writeError(w, e)
		}()
		next.ServeHTTP(w, r)
	})
}
