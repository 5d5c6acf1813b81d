// Package offense defines the core domain entities for recorded violations.
// This package is PURE and must NOT import any infrastructure packages.
package offense

import "time"

// Kind represents the category of an offense. The set is closed; anything
// that does not map to a known kind must be recorded as KindUnknown rather
// than matched by string fallback.
type Kind string

const (
	KindTheft           Kind = "Theft"
	KindVandalism       Kind = "Vandalism"
	KindTrespassing     Kind = "Trespassing"
	KindDrugPossession  Kind = "DrugPossession"
	KindContraband      Kind = "Contraband"
	KindResistingArrest Kind = "ResistingArrest"
	KindEscapeAttempt   Kind = "EscapeAttempt"
	KindAssault         Kind = "Assault"
	KindAssaultSevere   Kind = "AssaultSevere" // severe violence against a person; keyed by victim class
	KindUnknown         Kind = "Unknown"
)

// ParseKind maps a raw tag onto the closed Kind set.
func ParseKind(raw string) Kind {
	switch Kind(raw) {
	case KindTheft, KindVandalism, KindTrespassing, KindDrugPossession,
		KindContraband, KindResistingArrest, KindEscapeAttempt,
		KindAssault, KindAssaultSevere:
		return Kind(raw)
	}
	return KindUnknown
}

// VictimClass distinguishes who a severe-violence offense was against.
type VictimClass string

const (
	VictimCivilian VictimClass = "Civilian"
	VictimStaff    VictimClass = "Staff"
	VictimOfficer  VictimClass = "Officer"
)

// RiskLevel buckets an actor's rap sheet for supervision purposes.
type RiskLevel string

const (
	RiskNone    RiskLevel = "None"
	RiskMinimum RiskLevel = "Minimum"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskSevere  RiskLevel = "Severe"
)

// Offense is a single recorded violation.
type Offense struct {
	Kind         Kind        `json:"kind"`
	Severity     float64     `json:"severity"` // 0 means "not recorded"; callers substitute a default
	Witnessed    bool        `json:"witnessed"`
	WitnessCount int         `json:"witness_count"`
	VictimClass  VictimClass `json:"victim_class,omitempty"` // only meaningful for KindAssaultSevere
	Timestamp    time.Time   `json:"timestamp"`
}

// RapSheet is the ordered, append-only ledger of offenses for one actor.
// Offense count never decreases while the actor is in custody; clearing is
// an external amnesty concern and not part of this type.
type RapSheet struct {
	offenses []Offense
}

// NewRapSheet creates an empty ledger.
func NewRapSheet() *RapSheet {
	return &RapSheet{offenses: make([]Offense, 0)}
}

// Add appends an offense to the ledger.
func (rs *RapSheet) Add(o Offense) {
	rs.offenses = append(rs.offenses, o)
}

// Count returns the total number of recorded offenses.
func (rs *RapSheet) Count() int {
	if rs == nil {
		return 0
	}
	return len(rs.offenses)
}

// Snapshot returns a copy of the ledger. Calculators work off snapshots so
// the ledger is never mutated through shared references.
func (rs *RapSheet) Snapshot() []Offense {
	if rs == nil {
		return nil
	}
	out := make([]Offense, len(rs.offenses))
	copy(out, rs.offenses)
	return out
}

// CountByKind returns how many offenses of a given kind are recorded.
func (rs *RapSheet) CountByKind(k Kind) int {
	if rs == nil {
		return 0
	}
	n := 0
	for _, o := range rs.offenses {
		if o.Kind == k {
			n++
		}
	}
	return n
}

// AverageSeverity returns the mean severity across the ledger.
// Unrecorded severities count as 1.0.
func (rs *RapSheet) AverageSeverity() float64 {
	if rs.Count() == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range rs.offenses {
		s := o.Severity
		if s <= 0 {
			s = 1.0
		}
		sum += s
	}
	return sum / float64(len(rs.offenses))
}

// Risk buckets the ledger into a supervision risk level.
func (rs *RapSheet) Risk() RiskLevel {
	if rs.Count() == 0 {
		return RiskNone
	}
	avg := rs.AverageSeverity()
	switch {
	case avg <= 1.0:
		return RiskMinimum
	case avg <= 2.0:
		return RiskMedium
	case avg <= 2.5:
		return RiskHigh
	default:
		return RiskSevere
	}
}
