package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
)

// HandlerFunc is a pipeline handler that reports failures by returning them.
// It must not write a response when it returns an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts h to net/http, sending any returned error down the error path.
func (p *Pipeline) handle(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			p.fail(w, r, err)
		}
	}
}

// fail is the error path: capture, then respond.
func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, err error) {
	pe := p.captureError(r, err)
	p.respondError(w, r, pe)
}

// captureError logs the failure with full detail and attaches it to the access log.
func (p *Pipeline) captureError(r *http.Request, err error) *Error {
	pe := asError(err)

	attrs := []slog.Attr{
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", pe.StatusCode()),
		slog.String("message", pe.Message),
	}
	if pe.Err != nil {
		attrs = append(attrs, slog.String("error", pe.Err.Error()))
	}
	p.logger.LogAttrs(r.Context(), slog.LevelError, "request failed", attrs...)

	AddError(r.Context(), pe)
	return pe
}

// respondError writes the status and plain text message of pe. It never panics;
// if a response was already started it leaves it alone.
func (p *Pipeline) respondError(w http.ResponseWriter, r *http.Request, pe *Error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("error responder panicked",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.Any("panic", rec))
		}
	}()

	if ww, ok := w.(middleware.WrapResponseWriter); ok && ww.Status() != 0 {
		p.logger.Warn("response already started, dropping error response",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.Int("sent_status", ww.Status()),
			slog.Int("error_status", pe.StatusCode()))
		return
	}

	status := pe.StatusCode()
	message := pe.Message
	if message == "" {
		message = http.StatusText(status)
	}

	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprint(w, message)
}

// recoverMiddleware turns a panic in a later stage into an internal error response.
// It runs twice: right under the health stage, and again under the access log so
// handler panics are still counted and logged.
func (p *Pipeline) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww, ok := w.(middleware.WrapResponseWriter)
		if !ok {
			ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			p.logger.Debug("panic stack", slog.String("stack", string(debug.Stack())))
			p.fail(ww, r, Internal(fmt.Errorf("panic: %w", err)))
		}()
		next.ServeHTTP(ww, r)
	})
}
