// Package clock abstracts wall-clock time so services that bucket or
// order events by time stay deterministic under test.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

type SystemClock struct{}

func NewSystemClock() Clock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }
