package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
)

type bodyKey struct{}

// parsedBody is the outcome of the body parsing stage: the decoded JSON value,
// or the failure to raise once a route consumes the body.
type parsedBody struct {
	value any
	err   *Error
}

// BodyFromContext returns the JSON body decoded by the body parsing stage.
// ok is false when the request had no JSON body or it failed to parse.
// A literal null body yields (nil, true).
func BodyFromContext(ctx context.Context) (value any, ok bool) {
	b, ok := ctx.Value(bodyKey{}).(*parsedBody)
	if !ok || b.err != nil {
		return nil, false
	}
	return b.value, true
}

// bodyError returns the failure recorded by the body parsing stage, if any.
func bodyError(ctx context.Context) error {
	if b, ok := ctx.Value(bodyKey{}).(*parsedBody); ok && b.err != nil {
		return b.err
	}
	return nil
}

// bodyParser decodes JSON request bodies up to limit bytes and stores the
// result in the request context. GET and HEAD bodies, and bodies without a
// JSON content type, are left unread. A malformed body is recorded rather than
// answered here, so only routes that read the body fail on it.
func (p *Pipeline) bodyParser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		body, err := decodeBody(w, r, p.cfg.Server.MaxBodyBytes)
		if err != nil {
			body = &parsedBody{err: asError(err)}
		}
		if body != nil {
			r = r.WithContext(context.WithValue(r.Context(), bodyKey{}, body))
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64) (*parsedBody, error) {
	if r.Body == nil || r.Body == http.NoBody || !isJSONContent(r.Header.Get("Content-Type")) {
		return nil, nil
	}

	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &Error{Status: http.StatusRequestEntityTooLarge, Message: "Request body too large", Err: err}
		}
		return nil, BadRequest("Unable to read request body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, BadRequest("Malformed JSON body", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, BadRequest("Malformed JSON body", errors.New("unexpected data after top-level value"))
	}

	return &parsedBody{value: value}, nil
}

// isJSONContent accepts application/json and any +json type.
func isJSONContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
