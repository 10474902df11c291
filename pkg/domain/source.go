package domain

import (
	"strings"

	dErrors "rmr/pkg/domain-errors"
)

// Source is the entry point a ledger record arrived through.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceManual  Source = "manual"
	SourceImport  Source = "import"
)

var validSources = map[Source]bool{
	SourceWebhook: true,
	SourceManual:  true,
	SourceImport:  true,
}

// ParseSource constructs a Source from external input, case-insensitively.
//
// Errors: returns CodeInvalidInput for empty or unsupported values.
func ParseSource(s string) (Source, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "source cannot be empty")
	}
	src := Source(s)
	if !src.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "source must be one of webhook, manual, import")
	}
	return src, nil
}

func (s Source) IsValid() bool {
	return validSources[s]
}

func (s Source) String() string { return string(s) }
