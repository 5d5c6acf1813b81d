package sentencing

import (
	"fmt"
	"math"
	"sort"

	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/platform/logger"
)

// SentenceCalculator turns a rap sheet into a clamped jail duration in
// simulated minutes. It never fails: unknown offense kinds take the default
// base duration with a warning.
type SentenceCalculator struct {
	cfg    *Config
	logger *logger.Logger
}

// NewSentenceCalculator creates a calculator over the given tables.
func NewSentenceCalculator(cfg *Config, log *logger.Logger) *SentenceCalculator {
	return &SentenceCalculator{cfg: cfg, logger: log}
}

type sentenceEntry struct {
	base         float64
	severity     float64
	witnessed    bool
	witnessCount int
}

// Calculate returns the jail duration for the rap sheet, in simulated
// minutes, clamped to [MinSentenceMinutes, MaxSentenceMinutes].
// An empty rap sheet yields exactly the minimum.
func (c *SentenceCalculator) Calculate(rs *offense.RapSheet) int {
	offs := rs.Snapshot()
	if len(offs) == 0 {
		return int(c.cfg.MinSentenceMinutes)
	}

	entries := make([]sentenceEntry, 0, len(offs))
	for _, o := range offs {
		base, known := c.cfg.BaseDurationFor(o)
		if !known {
			c.logger.Warn(fmt.Sprintf("No base duration for offense kind %q (victim %q), using default %.0f", o.Kind, o.VictimClass, base))
		}
		entries = append(entries, sentenceEntry{
			base:         base,
			severity:     c.cfg.SeverityFor(o),
			witnessed:    o.Witnessed,
			witnessCount: o.WitnessCount,
		})
	}

	// Diminishing returns: the worst offense dominates, stacking is sub-linear.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].base > entries[j].base
	})

	weighted := 0.0
	severitySum := 0.0
	for rank, e := range entries {
		weighted += e.base * c.cfg.RankWeight(rank)
		severitySum += e.severity
	}

	avgSeverity := severitySum / float64(len(entries))
	total := weighted
	total *= c.cfg.SeverityMultiplier(avgSeverity)
	total *= c.cfg.RepeatMultiplier(len(entries))
	total *= c.witnessMultiplier(entries)
	total *= c.cfg.GlobalScalar

	clamped := math.Min(math.Max(total, c.cfg.MinSentenceMinutes), c.cfg.MaxSentenceMinutes)
	return int(math.Round(clamped))
}

// witnessMultiplier discounts fully unwitnessed offense sets and adds a
// capped bonus per extra witness beyond the first.
func (c *SentenceCalculator) witnessMultiplier(entries []sentenceEntry) float64 {
	witnessed := 0
	extras := 0.0
	for _, e := range entries {
		if !e.witnessed {
			continue
		}
		witnessed++
		if e.witnessCount > 1 {
			extras += float64(e.witnessCount - 1)
		}
	}

	if witnessed == 0 {
		return c.cfg.UnwitnessedFactor
	}

	avgExtras := extras / float64(witnessed)
	bonus := math.Min(c.cfg.WitnessBonusPerExtra*avgExtras, c.cfg.WitnessBonusCap)
	return 1.0 + bonus
}
