package generic

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type RepeatFunc func(t time.Time) error

// Repeat executes f every interval, n times in total (infinitely when n is
// negative), starting at startTime. It stops early when f fails or the
// context is cancelled.
func Repeat(ctx context.Context, f RepeatFunc, startTime time.Time, interval time.Duration, n int) error {
	untilStart := time.Until(startTime)
	if untilStart > 0 {
		log.Debug().Msgf("first run scheduled at %s", startTime)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(untilStart):
		}
	}

	t := startTime
	for n != 0 {
		if err := f(t); err != nil {
			return err
		}

		t = t.Add(interval)
		if n > 0 {
			n--
			if n == 0 {
				break
			}
		}
		log.Debug().Msgf("next run scheduled at %s", t)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(t)):
		}
	}

	return nil
}
