package sentencing

import (
	"fmt"

	"github.com/penhollow/custody-server/internal/domain/actor"
	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/platform/logger"
)

// FineCalculator turns recorded offenses into a monetary fine. The rap
// sheet is the authoritative post-arrest ledger; the pre-arrest tally on
// the actor is only a fallback when the ledger is empty.
type FineCalculator struct {
	cfg    *Config
	logger *logger.Logger
}

// NewFineCalculator creates a calculator over the given tables.
func NewFineCalculator(cfg *Config, log *logger.Logger) *FineCalculator {
	return &FineCalculator{cfg: cfg, logger: log}
}

// CalculateTotalFine returns the total fine for the actor. Zero offenses on
// both sources yields 0. The repeat-offender multiplier only applies when a
// rap sheet is available.
func (c *FineCalculator) CalculateTotalFine(a *actor.Actor, rs *offense.RapSheet) float64 {
	if rs.Count() > 0 {
		total := 0.0
		for _, o := range rs.Snapshot() {
			f, known := c.cfg.BaseFineFor(o)
			if !known {
				c.logger.Warn(fmt.Sprintf("No base fine for offense kind %q (victim %q), using default %.2f", o.Kind, o.VictimClass, f))
			}
			total += f
		}
		return total * c.cfg.RepeatMultiplier(rs.Count())
	}

	// Pre-arrest tally: flat sum, no multiplier (counts are unverified).
	total := 0.0
	for kind, count := range a.PriorTally {
		if count <= 0 {
			continue
		}
		f, known := c.cfg.BaseFineFor(offense.Offense{Kind: kind})
		if !known {
			c.logger.Warn(fmt.Sprintf("No base fine for prior offense kind %q, using default %.2f", kind, f))
		}
		total += f * float64(count)
	}
	return total
}
