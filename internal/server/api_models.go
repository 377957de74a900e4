package server

import (
	"github.com/raysh454/cleanweb/internal/app"
	"github.com/raysh454/cleanweb/internal/model"
)

// HealthResponse reports liveness and the number of open sessions.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ClassifiersResponse lists registered classifiers in registration order.
type ClassifiersResponse struct {
	Default     string   `json:"default"`
	Classifiers []string `json:"classifiers"`
}

// ClassifyRequest scores one image URL. Threshold and StrictMode tune a
// private copy of the classifier for this request only.
type ClassifyRequest struct {
	URL        string   `json:"url"`
	Classifier string   `json:"classifier,omitempty"`
	Threshold  *float64 `json:"severityThreshold,omitempty"`
	StrictMode *bool    `json:"strictMode,omitempty"`
}

// RefreshResponse reports how many images a refresh re-decided.
type RefreshResponse struct {
	Processed int         `json:"processed"`
	Stats     model.Stats `json:"stats"`
}

// MutationResponse reports how many elements a mutation touched.
type MutationResponse struct {
	Changed int `json:"changed"`
}

// SessionListResponse wraps the session list.
type SessionListResponse struct {
	Sessions []app.SessionInfo `json:"sessions"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
