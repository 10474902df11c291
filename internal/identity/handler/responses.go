package handler

import (
	"time"

	"rmr/pkg/domain"
)

// ResolveResponse is the body of GET /identity/resolve.
type ResolveResponse struct {
	Email    string           `json:"email"`
	Matched  bool             `json:"matched"`
	ClientID *domain.ClientID `json:"client_id,omitempty"`
}

// RebuildResponse describes a freshly built resolver index.
type RebuildResponse struct {
	Emails    int       `json:"emails"`
	Conflicts int       `json:"conflicts"`
	BuiltAt   time.Time `json:"built_at"`
}
