package sentencing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/penhollow/custody-server/internal/domain/actor"
	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/platform/logger"
)

func newFineCalc() *FineCalculator {
	return NewFineCalculator(DefaultConfig(), logger.NewLogger())
}

func TestFineFromRapSheet(t *testing.T) {
	a := actor.NewActor("A001", "Frank")
	a.RecordOffense(witnessed(offense.KindTheft, 1.0))
	a.RecordOffense(witnessed(offense.KindAssault, 1.0))

	// (150 + 350) * 1.25 repeat multiplier.
	got := newFineCalc().CalculateTotalFine(a, a.RapSheet)
	assert.Equal(t, 625.0, got)
}

func TestFineSevereAssaultByVictimClass(t *testing.T) {
	a := actor.NewActor("A001", "Frank")
	a.RecordOffense(offense.Offense{Kind: offense.KindAssaultSevere, VictimClass: offense.VictimStaff})

	got := newFineCalc().CalculateTotalFine(a, a.RapSheet)
	assert.Equal(t, 800.0, got)
}

func TestFineFallsBackToPriorTally(t *testing.T) {
	a := actor.NewActor("A001", "Frank")
	a.PriorTally = map[offense.Kind]int{
		offense.KindTheft:     2,
		offense.KindVandalism: 1,
	}

	// Flat sum, no repeat multiplier on unverified priors.
	got := newFineCalc().CalculateTotalFine(a, a.RapSheet)
	assert.Equal(t, 400.0, got)
}

func TestFineZeroWithNoOffenses(t *testing.T) {
	a := actor.NewActor("A001", "Frank")
	got := newFineCalc().CalculateTotalFine(a, a.RapSheet)
	assert.Equal(t, 0.0, got)
}

func TestFineUnknownKindUsesDefault(t *testing.T) {
	a := actor.NewActor("A001", "Frank")
	a.RecordOffense(offense.Offense{Kind: offense.KindUnknown})

	got := newFineCalc().CalculateTotalFine(a, a.RapSheet)
	assert.Equal(t, 75.0, got)
}

func TestRapSheetTakesPriorityOverTally(t *testing.T) {
	a := actor.NewActor("A001", "Frank")
	a.PriorTally = map[offense.Kind]int{offense.KindEscapeAttempt: 3}
	a.RecordOffense(witnessed(offense.KindTheft, 1.0))

	// One verified theft beats three unverified priors.
	got := newFineCalc().CalculateTotalFine(a, a.RapSheet)
	assert.Equal(t, 150.0, got)
}
