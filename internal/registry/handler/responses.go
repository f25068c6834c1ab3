package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"did-registry/internal/events"
	"did-registry/internal/registry/models"
	dErrors "did-registry/pkg/domain-errors"
)

type resolveResponse struct {
	DID        string    `json:"did"`
	Document   string    `json:"document"`
	Controller string    `json:"controller"`
	UpdatedAt  time.Time `json:"updated_at"`
	Active     bool      `json:"active"`
}

func toResolveResponse(r *models.Resolution) resolveResponse {
	return resolveResponse{
		DID:        r.DID.String(),
		Document:   r.Document,
		Controller: r.Controller.String(),
		UpdatedAt:  r.UpdatedAt,
		Active:     r.Active,
	}
}

type delegateResponse struct {
	DID      string `json:"did"`
	Address  string `json:"address"`
	Delegate bool   `json:"delegate"`
}

type existsResponse struct {
	DID    string `json:"did"`
	Exists bool   `json:"exists"`
}

type eventsResponse struct {
	Events []events.Event `json:"events"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation to HTTP responses so every
// endpoint shares one JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	writeJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error": string(code),
	})
}
