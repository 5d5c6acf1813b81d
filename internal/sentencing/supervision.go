package sentencing

import (
	"fmt"

	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/platform/logger"
)

// ParoleTerm is the post-release supervision output. Ownership passes to
// the external supervision collaborator once a release completes.
type ParoleTerm struct {
	DurationMinutes int               `json:"duration_minutes"`
	Risk            offense.RiskLevel `json:"risk"`
	Violations      int               `json:"violations"`
}

// String renders the term for logs.
func (t ParoleTerm) String() string {
	return fmt.Sprintf("%d min supervision (risk %s, %d violation(s))", t.DurationMinutes, t.Risk, t.Violations)
}

// SupervisionCalculator computes parole terms at release completion.
type SupervisionCalculator struct {
	cfg    *Config
	logger *logger.Logger
}

// NewSupervisionCalculator creates a calculator over the given tables.
func NewSupervisionCalculator(cfg *Config, log *logger.Logger) *SupervisionCalculator {
	return &SupervisionCalculator{cfg: cfg, logger: log}
}

// Compute returns the supervision term for an actor at release.
//
// If a paused prior term exists it is resumed and extended: the new
// crime-based time plus violation penalties are added onto the remaining
// paused duration. Otherwise a fresh term is computed from the rap sheet.
// Either way the result is clamped to [MinMinutes, MaxMinutes].
func (s *SupervisionCalculator) Compute(rs *offense.RapSheet, paused *ParoleTerm) ParoleTerm {
	sup := s.cfg.Supervision
	risk := rs.Risk()
	riskMult := sup.RiskMultipliers[risk]
	if riskMult == 0 {
		riskMult = 1.0
	}

	crimeMinutes := float64(rs.Count()*sup.PerOffenseMinutes) * riskMult

	var term ParoleTerm
	if paused != nil {
		term = ParoleTerm{
			DurationMinutes: paused.DurationMinutes + int(crimeMinutes) + paused.Violations*sup.ViolationPenaltyMinutes,
			Risk:            risk,
			Violations:      paused.Violations,
		}
		s.logger.Info(fmt.Sprintf("Resuming paused supervision term: %d min remaining + %d min new", paused.DurationMinutes, term.DurationMinutes-paused.DurationMinutes))
	} else {
		term = ParoleTerm{
			DurationMinutes: sup.BaseMinutes + int(crimeMinutes),
			Risk:            risk,
			Violations:      0,
		}
	}

	if term.DurationMinutes < sup.MinMinutes {
		term.DurationMinutes = sup.MinMinutes
	}
	if term.DurationMinutes > sup.MaxMinutes {
		term.DurationMinutes = sup.MaxMinutes
	}
	return term
}
