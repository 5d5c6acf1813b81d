// Package actor defines the core domain entity for a person moving through
// intake, custody and release.
// This package is PURE and must NOT import any infrastructure packages.
package actor

import "github.com/penhollow/custody-server/internal/domain/offense"

// Ref is a stable identity reference. The person itself is owned elsewhere;
// the custody core only ever needs the id and a display name.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Actor is the custody-side record for a person. The rap sheet is owned by
// this record; calculators receive snapshots, never the live ledger.
type Actor struct {
	Ref

	InCustody bool `json:"in_custody"`

	// PriorTally is the pre-arrest offense tally (kind -> count), used as the
	// fine fallback when no rap sheet entries exist yet.
	PriorTally map[offense.Kind]int `json:"prior_tally,omitempty"`

	RapSheet *offense.RapSheet `json:"-"`

	// Confiscated lists item names taken at booking, returned at release.
	Confiscated []string `json:"confiscated,omitempty"`
}

// NewActor creates a fresh custody record with an empty rap sheet.
func NewActor(id, name string) *Actor {
	return &Actor{
		Ref:      Ref{ID: id, Name: name},
		RapSheet: offense.NewRapSheet(),
	}
}

// RecordOffense appends to the rap sheet.
func (a *Actor) RecordOffense(o offense.Offense) {
	if a.RapSheet == nil {
		a.RapSheet = offense.NewRapSheet()
	}
	a.RapSheet.Add(o)
}

// PriorCount returns the total pre-arrest tally.
func (a *Actor) PriorCount() int {
	n := 0
	for _, c := range a.PriorTally {
		n += c
	}
	return n
}
