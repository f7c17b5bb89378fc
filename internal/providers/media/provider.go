// Package media produces the playable guide video for an item. Actual
// rendering happens in an external generation service; the builtin
// implementation derives the reference URL and duration the pipeline
// contract requires.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/guidely/guidely/internal/config"
	"github.com/guidely/guidely/internal/providers/extract"
	"go.uber.org/fx"
)

// Result is the media-generation outcome. StepCount always equals the
// number of steps handed in; DurationSec is positive and grows with
// the step count.
type Result struct {
	VideoRef    string
	DurationSec int
	StepCount   int
}

type Provider interface {
	Generate(ctx context.Context, itemID snowflake.ID, steps []extract.Step) (*Result, error)
}

var ErrNoSteps = errors.New("media_requires_steps")

var Module = fx.Module("providers.media",
	fx.Provide(NewBuiltin),
)

type Builtin struct {
	baseURL        string
	secondsPerStep int
}

func NewBuiltin(cfg config.Config) Provider {
	secondsPerStep := cfg.MediaSecondsPerStep
	if secondsPerStep <= 0 {
		secondsPerStep = 45
	}
	return &Builtin{
		baseURL:        cfg.MediaBaseURL,
		secondsPerStep: secondsPerStep,
	}
}

func (b *Builtin) Generate(ctx context.Context, itemID snowflake.ID, steps []extract.Step) (*Result, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	return &Result{
		VideoRef:    fmt.Sprintf("%s/videos/%s.mp4", b.baseURL, itemID.String()),
		DurationSec: len(steps) * b.secondsPerStep,
		StepCount:   len(steps),
	}, nil
}
