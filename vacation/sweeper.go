package vacation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/yukyu/generic"
)

// Sweeper zeroes lots whose expiry has passed.
type Sweeper struct {
	lots   LotStore
	logger zerolog.Logger
}

func NewSweeper(lots LotStore, logger zerolog.Logger) *Sweeper {
	return &Sweeper{lots: lots, logger: logger.With().Str("component", "sweeper").Logger()}
}

// ExpireLots sets remaining to zero on every lot with expiry before today that
// still has days left, and returns how many lots changed. A second run on the
// same day returns 0.
func (s *Sweeper) ExpireLots(ctx context.Context, today generic.TimePoint) (int, error) {
	n, err := s.lots.ExpireLots(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to expire lots: %w", err)
	}
	s.logger.Info().Str("as_of", today.String()).Int("expired", n).Msg("expired grant lots")
	return n, nil
}
