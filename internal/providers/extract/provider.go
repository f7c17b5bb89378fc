// Package extract turns an uploaded instruction artifact into an
// ordered list of assembly steps. The Provider interface is the
// orchestration contract with the extraction service; the builtin
// implementation is a local stand-in good enough for self-hosting.
package extract

import (
	"context"
	"errors"

	itemdomain "github.com/guidely/guidely/internal/item/domain"
)

// Step is one extracted instruction step, ordered by Number from 1.
type Step struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

type Provider interface {
	ExtractSteps(ctx context.Context, artifactRef string, artifactType itemdomain.ArtifactType) ([]Step, error)
}

var (
	ErrUnreadable = errors.New("artifact_unreadable")
	ErrNoSteps    = errors.New("artifact_has_no_steps")
)
