package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (p *Pipeline) handleVersion(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, VersionResponse{
		Name:    p.cfg.Service.Name,
		Version: p.cfg.Service.Version,
	})
}

// handleTransform hands the parsed body to the rules engine and relays its answer.
func (p *Pipeline) handleTransform(w http.ResponseWriter, r *http.Request) error {
	if err := bodyError(r.Context()); err != nil {
		return err
	}
	body, ok := BodyFromContext(r.Context())
	if !ok {
		return BadRequest("Request body must be a JSON document", nil)
	}

	out, err := p.engine.Apply(r.Context(), body)
	if err != nil {
		return collaboratorError(err)
	}
	return writeJSON(w, http.StatusOK, out)
}

func (p *Pipeline) handleNotFound(w http.ResponseWriter, r *http.Request) error {
	return ErrNotFound
}

// writeJSON encodes v before touching w, so an encoding failure can still be
// answered by the error path.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return Internal(fmt.Errorf("encode response: %w", err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Write failures mean the client went away; the status line is already out
	w.Write(data)
	return nil
}
