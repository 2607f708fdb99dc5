package scenario

import (
	"context"
	"time"

	"github.com/verte-zerg/klsim/internal/clock"
)

// Typist receives the growing text during playback.
type Typist interface {
	SetDemoInput(candidate string)
}

// Player types text into a Typist one character per interval.
type Player struct {
	clock clock.Clock
}

// NewPlayer returns a Player driven by clk.
func NewPlayer(clk clock.Clock) *Player {
	return &Player{clock: clk}
}

// Play blocks until the text is fully typed or ctx is done.
func (p *Player) Play(ctx context.Context, typist Typist, text string, interval time.Duration) error {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < len(runes); {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := ctx.Err(); err != nil {
				return err
			}
			typist.SetDemoInput(string(runes[:i+1]))
			i++
		}
	}
	return nil
}
