// Package sentencing turns a rap sheet into jail time, fines and
// post-release supervision terms. All tables live in Config and are
// independently overridable; the calculators never hard-code a duration.
package sentencing

import "github.com/penhollow/custody-server/internal/domain/offense"

// MultiplierTier maps an average-severity ceiling to a multiplier.
// Tiers are evaluated in order; the first tier whose MaxAverage is not
// exceeded wins.
type MultiplierTier struct {
	MaxAverage float64
	Multiplier float64
}

// RepeatTier maps a minimum total offense count to a multiplier.
// Tiers are evaluated last-to-first; the highest matching tier wins.
type RepeatTier struct {
	MinCount   int
	Multiplier float64
}

// SupervisionConfig holds the parameters for post-release supervision terms.
type SupervisionConfig struct {
	BaseMinutes             int
	PerOffenseMinutes       int
	ViolationPenaltyMinutes int
	RiskMultipliers         map[offense.RiskLevel]float64
	MinMinutes              int // 1 simulated day
	MaxMinutes              int // 7 simulated days
}

// Config holds every tunable sentencing table.
type Config struct {
	// Base jail durations in simulated minutes, per offense kind.
	// KindAssaultSevere is keyed by victim class instead.
	BaseDurations      map[offense.Kind]float64
	AssaultSevereBases map[offense.VictimClass]float64

	// DefaultBaseDuration is applied when an offense kind has no table
	// entry. Kept deliberately low; drift between recorder and table should
	// under-sentence, not over-sentence.
	DefaultBaseDuration float64

	// Severity scores substituted when an offense was recorded without one.
	DefaultSeverities map[offense.Kind]float64
	FallbackSeverity  float64

	SeverityTiers              []MultiplierTier
	SeverityOverflowMultiplier float64 // applied beyond the last tier
	RepeatTiers                []RepeatTier

	UnwitnessedFactor    float64
	WitnessBonusPerExtra float64
	WitnessBonusCap      float64

	GlobalScalar float64

	MinSentenceMinutes float64
	MaxSentenceMinutes float64

	// RankWeights implement diminishing returns: offenses sorted by base
	// duration descending get RankWeights[rank]; ranks past the end get the
	// last weight.
	RankWeights []float64

	// Flat fines per offense kind; severe violence keyed by victim class.
	BaseFines          map[offense.Kind]float64
	AssaultSevereFines map[offense.VictimClass]float64
	DefaultFine        float64

	Supervision SupervisionConfig
}

// DefaultConfig returns the production sentencing tables.
func DefaultConfig() *Config {
	return &Config{
		BaseDurations: map[offense.Kind]float64{
			offense.KindTheft:           120,
			offense.KindVandalism:       90,
			offense.KindTrespassing:     60,
			offense.KindDrugPossession:  150,
			offense.KindContraband:      180,
			offense.KindResistingArrest: 200,
			offense.KindEscapeAttempt:   400,
			offense.KindAssault:         240,
		},
		AssaultSevereBases: map[offense.VictimClass]float64{
			offense.VictimCivilian: 480,
			offense.VictimStaff:    600,
			offense.VictimOfficer:  720,
		},
		DefaultBaseDuration: 60,

		DefaultSeverities: map[offense.Kind]float64{
			offense.KindTheft:           1.0,
			offense.KindVandalism:       1.0,
			offense.KindTrespassing:     0.5,
			offense.KindDrugPossession:  1.5,
			offense.KindContraband:      1.5,
			offense.KindResistingArrest: 2.0,
			offense.KindEscapeAttempt:   2.5,
			offense.KindAssault:         2.0,
			offense.KindAssaultSevere:   3.0,
		},
		FallbackSeverity: 1.0,

		SeverityTiers: []MultiplierTier{
			{MaxAverage: 1.0, Multiplier: 1.0},
			{MaxAverage: 1.5, Multiplier: 1.5},
			{MaxAverage: 2.0, Multiplier: 2.0},
			{MaxAverage: 2.5, Multiplier: 2.5},
			{MaxAverage: 3.0, Multiplier: 3.0},
		},
		SeverityOverflowMultiplier: 4.0,

		RepeatTiers: []RepeatTier{
			{MinCount: 1, Multiplier: 1.0},
			{MinCount: 2, Multiplier: 1.25},
			{MinCount: 3, Multiplier: 1.5},
			{MinCount: 4, Multiplier: 2.0},
		},

		UnwitnessedFactor:    0.8,
		WitnessBonusPerExtra: 0.1,
		WitnessBonusCap:      0.3,

		GlobalScalar: 1.0,

		MinSentenceMinutes: 120,  // 2 simulated hours
		MaxSentenceMinutes: 7200, // 5 simulated days

		RankWeights: []float64{1.0, 0.75, 0.5, 0.25},

		BaseFines: map[offense.Kind]float64{
			offense.KindTheft:           150,
			offense.KindVandalism:       100,
			offense.KindTrespassing:     50,
			offense.KindDrugPossession:  200,
			offense.KindContraband:      250,
			offense.KindResistingArrest: 300,
			offense.KindEscapeAttempt:   500,
			offense.KindAssault:         350,
		},
		AssaultSevereFines: map[offense.VictimClass]float64{
			offense.VictimCivilian: 600,
			offense.VictimStaff:    800,
			offense.VictimOfficer:  1000,
		},
		DefaultFine: 75,

		Supervision: SupervisionConfig{
			BaseMinutes:             720,
			PerOffenseMinutes:       180,
			ViolationPenaltyMinutes: 240,
			RiskMultipliers: map[offense.RiskLevel]float64{
				offense.RiskNone:    1.0,
				offense.RiskMinimum: 1.0,
				offense.RiskMedium:  1.25,
				offense.RiskHigh:    1.5,
				offense.RiskSevere:  2.0,
			},
			MinMinutes: 1440,
			MaxMinutes: 10080,
		},
	}
}

// BaseDurationFor looks up the base jail duration for an offense.
// The second return is false when the table had no entry and the default
// was substituted.
func (c *Config) BaseDurationFor(o offense.Offense) (float64, bool) {
	if o.Kind == offense.KindAssaultSevere {
		if d, ok := c.AssaultSevereBases[o.VictimClass]; ok {
			return d, true
		}
		return c.DefaultBaseDuration, false
	}
	if d, ok := c.BaseDurations[o.Kind]; ok {
		return d, true
	}
	return c.DefaultBaseDuration, false
}

// SeverityFor returns the recorded severity, or the kind's default.
func (c *Config) SeverityFor(o offense.Offense) float64 {
	if o.Severity > 0 {
		return o.Severity
	}
	if s, ok := c.DefaultSeverities[o.Kind]; ok {
		return s
	}
	return c.FallbackSeverity
}

// SeverityMultiplier buckets an average severity into its multiplier.
func (c *Config) SeverityMultiplier(avg float64) float64 {
	for _, tier := range c.SeverityTiers {
		if avg <= tier.MaxAverage {
			return tier.Multiplier
		}
	}
	return c.SeverityOverflowMultiplier
}

// RepeatMultiplier returns the repeat-offender multiplier for a total count.
func (c *Config) RepeatMultiplier(count int) float64 {
	mult := 1.0
	for _, tier := range c.RepeatTiers {
		if count >= tier.MinCount {
			mult = tier.Multiplier
		}
	}
	return mult
}

// RankWeight returns the diminishing-returns weight for a rank.
func (c *Config) RankWeight(rank int) float64 {
	if len(c.RankWeights) == 0 {
		return 1.0
	}
	if rank >= len(c.RankWeights) {
		return c.RankWeights[len(c.RankWeights)-1]
	}
	return c.RankWeights[rank]
}

// BaseFineFor looks up the flat fine for an offense.
// The second return is false when the default fine was substituted.
func (c *Config) BaseFineFor(o offense.Offense) (float64, bool) {
	if o.Kind == offense.KindAssaultSevere {
		if f, ok := c.AssaultSevereFines[o.VictimClass]; ok {
			return f, true
		}
		return c.DefaultFine, false
	}
	if f, ok := c.BaseFines[o.Kind]; ok {
		return f, true
	}
	return c.DefaultFine, false
}
