// Package carbon converts stored email volume into an annual CO2 estimate.
//
// CO2 (kg) = storage MB × 365 days × 7e-8 kWh/MB/day × 0.233 kg CO2/kWh.
// The factors are global averages; real figures vary by data centre and grid mix.
package carbon

import (
	"fmt"
	"math"
)

const (
	KWhPerMBPerDay     = 0.00000007
	KgCO2PerKWh        = 0.233
	DaysPerYear        = 365
	KgCO2PerCarMile    = 0.21
	KgCO2PerTreePerYr  = 21
	DeletableFraction  = 0.30
	savingsDescription = "Estimated CO2 saved if you deleted 30% of your emails"
)

// Tier classifies an estimate for user-facing guidance.
type Tier int

const (
	TierVeryLow Tier = iota
	TierLow
	TierModerate
	TierHigh
)

type tierInfo struct {
	upper float64 // exclusive; the last tier is unbounded
	label string
	tip   string
}

var tiers = [...]tierInfo{
	TierVeryLow:  {upper: 0.01, label: "Very Low", tip: "Great job! Your email footprint is minimal."},
	TierLow:      {upper: 0.1, label: "Low", tip: "Not bad! Deleting old emails could reduce this further."},
	TierModerate: {upper: 1.0, label: "Moderate", tip: "Consider unsubscribing from newsletters and deleting emails older than 1 year."},
	TierHigh:     {upper: math.Inf(1), label: "High", tip: "Your email storage has a significant footprint. A regular email cleanup could help a lot!"},
}

// TierFor returns the band containing kg.
func TierFor(kg float64) Tier {
	for i, t := range tiers {
		if kg < t.upper {
			return Tier(i)
		}
	}
	return TierHigh
}

func (t Tier) String() string {
	if t < TierVeryLow || t > TierHigh {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tiers[t].label
}

// Tip is the advisory message attached to the tier.
func (t Tier) Tip() string {
	if t < TierVeryLow || t > TierHigh {
		return ""
	}
	return tiers[t].tip
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

type Comparisons struct {
	EquivalentCarMiles  float64 `json:"equivalent_car_miles"`
	TreesNeededToOffset float64 `json:"trees_needed_to_offset"`
}

type Savings struct {
	IfDeleted30PercentKg float64 `json:"if_deleted_30_percent_kg"`
	Description          string  `json:"description"`
}

// Estimate is the display-ready result; every number is already rounded.
type Estimate struct {
	TotalStorageMB float64     `json:"total_storage_analyzed_mb"`
	AnnualCO2Kg    float64     `json:"annual_co2_kg"`
	AnnualCO2Grams float64     `json:"annual_co2_grams"`
	Severity       Tier        `json:"severity"`
	Tip            string      `json:"tip"`
	Comparisons    Comparisons `json:"comparisons"`
	Savings        Savings     `json:"potential_savings"`
	FormulaNote    string      `json:"formula_note"`
}

// AnnualKg is the unrounded annual CO2 for totalSizeMB.
func AnnualKg(totalSizeMB float64) float64 {
	return totalSizeMB * DaysPerYear * KWhPerMBPerDay * KgCO2PerKWh
}

// Calculate estimates the annual footprint of storing totalSizeMB. Negative
// or NaN input is treated as zero. Rounding is applied to outputs only.
func Calculate(totalSizeMB float64) Estimate {
	if totalSizeMB < 0 || math.IsNaN(totalSizeMB) {
		totalSizeMB = 0
	}
	kg := AnnualKg(totalSizeMB)
	tier := TierFor(kg)
	return Estimate{
		TotalStorageMB: Round(totalSizeMB, 2),
		AnnualCO2Kg:    Round(kg, 6),
		AnnualCO2Grams: Round(kg*1000, 4),
		Severity:       tier,
		Tip:            tier.Tip(),
		Comparisons: Comparisons{
			EquivalentCarMiles:  Round(kg/KgCO2PerCarMile, 4),
			TreesNeededToOffset: Round(kg/KgCO2PerTreePerYr, 6),
		},
		Savings: Savings{
			IfDeleted30PercentKg: Round(kg*DeletableFraction, 6),
			Description:          savingsDescription,
		},
		FormulaNote: fmt.Sprintf(
			"Formula: %.2f MB × %d days × %g kWh/MB/day × %g kg CO2/kWh",
			totalSizeMB, DaysPerYear, KWhPerMBPerDay, KgCO2PerKWh,
		),
	}
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
