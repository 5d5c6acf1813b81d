package sentencing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/platform/logger"
)

func newSupCalc() *SupervisionCalculator {
	return NewSupervisionCalculator(DefaultConfig(), logger.NewLogger())
}

func TestFreshTermClampedToFloor(t *testing.T) {
	// Base 720 alone sits below the one-day floor.
	term := newSupCalc().Compute(offense.NewRapSheet(), nil)
	assert.Equal(t, 1440, term.DurationMinutes)
	assert.Equal(t, offense.RiskNone, term.Risk)
	assert.Equal(t, 0, term.Violations)
}

func TestFreshTermScalesWithOffenses(t *testing.T) {
	rs := sheet(
		witnessed(offense.KindTheft, 1.0),
		witnessed(offense.KindTheft, 1.0),
		witnessed(offense.KindTheft, 1.0),
		witnessed(offense.KindTheft, 1.0),
		witnessed(offense.KindTheft, 1.0),
	)

	// 720 base + 5 * 180 at minimum risk.
	term := newSupCalc().Compute(rs, nil)
	assert.Equal(t, 1620, term.DurationMinutes)
	assert.Equal(t, offense.RiskMinimum, term.Risk)
}

func TestRiskMultiplierAppliesToCrimeMinutes(t *testing.T) {
	rs := sheet(
		witnessed(offense.KindAssault, 2.0),
		witnessed(offense.KindAssault, 2.0),
	)

	// Average severity 2.0 buckets as medium risk: 720 + 2*180*1.25 = 1170,
	// clamped up to the floor.
	term := newSupCalc().Compute(rs, nil)
	assert.Equal(t, offense.RiskMedium, term.Risk)
	assert.Equal(t, 1440, term.DurationMinutes)
}

func TestPausedTermResumesAndExtends(t *testing.T) {
	rs := sheet(
		witnessed(offense.KindTheft, 1.0),
		witnessed(offense.KindTheft, 1.0),
	)
	paused := &ParoleTerm{DurationMinutes: 2000, Violations: 2}

	// 2000 remaining + 2*180 new crime + 2*240 violation penalties.
	term := newSupCalc().Compute(rs, paused)
	assert.Equal(t, 2840, term.DurationMinutes)
	assert.Equal(t, 2, term.Violations)
}

func TestTermClampedToCeiling(t *testing.T) {
	paused := &ParoleTerm{DurationMinutes: 9900, Violations: 3}
	term := newSupCalc().Compute(offense.NewRapSheet(), paused)
	assert.Equal(t, 10080, term.DurationMinutes)
}
