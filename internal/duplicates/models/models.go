package models

import (
	"time"

	"github.com/google/uuid"

	"rmr/pkg/domain"
	dErrors "rmr/pkg/domain-errors"
)

// Reason is a signal that made two clients look like the same person.
type Reason string

const (
	ReasonEmail    Reason = "email"
	ReasonPhone    Reason = "phone"
	ReasonLastName Reason = "last_name"
	ReasonDogName  Reason = "dog_name"
)

// Rank orders reasons for stable output, strongest first.
func (r Reason) Rank() int {
	switch r {
	case ReasonEmail:
		return 0
	case ReasonPhone:
		return 1
	case ReasonLastName:
		return 2
	default:
		return 3
	}
}

// Strong reasons alone justify high confidence.
func (r Reason) Strong() bool {
	return r == ReasonEmail || r == ReasonPhone
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// ConfidenceFor grades a pair by its single strongest reason. Several weak
// reasons together still grade medium.
func ConfidenceFor(reasons []Reason) Confidence {
	for _, r := range reasons {
		if r.Strong() {
			return ConfidenceHigh
		}
	}
	return ConfidenceMedium
}

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewConfirmed ReviewStatus = "confirmed"
	ReviewDismissed ReviewStatus = "dismissed"
)

// ParseReviewDecision accepts the statuses an operator may set.
func ParseReviewDecision(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(s); st {
	case ReviewConfirmed, ReviewDismissed:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "review status must be confirmed or dismissed")
}

// ParseReviewFilter accepts any status, or empty for all.
func ParseReviewFilter(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(s); st {
	case "", ReviewPending, ReviewConfirmed, ReviewDismissed:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "unknown review status")
}

// Candidate is a suspected duplicate pair awaiting operator review. Nothing
// is merged automatically.
type Candidate struct {
	ID                string          `json:"id"`
	PrimaryClientID   domain.ClientID `json:"primary_client_id"`
	SecondaryClientID domain.ClientID `json:"secondary_client_id"`
	Reasons           []Reason        `json:"reasons"`
	Confidence        Confidence      `json:"confidence"`
	ReviewStatus      ReviewStatus    `json:"review_status"`
	DetectedAt        time.Time       `json:"detected_at"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy        string          `json:"reviewed_by,omitempty"`
}

var candidateNamespace = uuid.MustParse("5d7a3f0e-2b1c-4f7e-8a9d-3c6b1e0f4a22")

// CandidateID is the same for (a, b) and (b, a).
func CandidateID(a, b domain.ClientID) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return uuid.NewSHA1(candidateNamespace, []byte(string(lo)+"|"+string(hi))).String()
}

// SyncReport summarises how a detection run changed the review queue.
type SyncReport struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Pruned  int `json:"pruned"`
}

// DetectReport is returned by a detection run.
type DetectReport struct {
	Clients    int         `json:"clients"`
	Candidates []Candidate `json:"candidates"`
	High       int         `json:"high"`
	Medium     int         `json:"medium"`
	Queue      SyncReport  `json:"queue"`
}
