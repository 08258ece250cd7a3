package domain

import (
	"strings"
	"time"
)

// Donor policy constants.
const (
	// MinDonationIntervalDays is the minimum number of days between donations.
	MinDonationIntervalDays = 56
	MinDonorAge             = 18
	MaxDonorAge             = 65
	MinDonorWeightKg        = 50.0
	// MinUnitsPerDonation and MaxUnitsPerDonation bound a single direct donation.
	MinUnitsPerDonation = 1
	MaxUnitsPerDonation = 5
	// CriticalStockThreshold marks a blood group as critically short when its
	// units fall below it.
	CriticalStockThreshold = 20
	// MatchLimit caps the number of ranked donors returned for a request.
	MatchLimit = 10
)

// Eligibility score bounds.
const (
	MinEligibilityScore = 0
	MaxEligibilityScore = 150
)

// EligibilityScore rates how suitable a donor is to be contacted. The score
// starts at 100 and is adjusted for age, availability, donation recency and
// donation history, then clamped to [0, 150].
func EligibilityScore(d Donor, now time.Time) int {
	score := 100
	switch {
	case d.Age >= 25 && d.Age <= 45:
		score += 10
	case d.Age < MinDonorAge || d.Age > MaxDonorAge:
		score -= 50
	}
	if !d.Available {
		score -= 100
	}
	if d.LastDonation == nil {
		score += 10
	} else if DaysBetween(*d.LastDonation, now) > 90 {
		score += 5
	}
	score += min(d.TotalDonations*2, 20)
	return max(MinEligibilityScore, min(score, MaxEligibilityScore))
}

// CanDonate applies the 56-day rule. A donor without a recorded donation may
// donate; otherwise at least MinDonationIntervalDays whole days must have
// passed, with the boundary day allowed.
func CanDonate(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return DaysBetween(*last, now) >= MinDonationIntervalDays
}

// DaysUntilEligible returns how many days remain before the donor may donate
// again; zero when eligible now.
func DaysUntilEligible(last *time.Time, now time.Time) int {
	if last == nil {
		return 0
	}
	return max(MinDonationIntervalDays-DaysBetween(*last, now), 0)
}

// DaysBetween counts calendar days from a to b using their UTC dates.
func DaysBetween(a, b time.Time) int {
	return int(Today(b).Sub(Today(a)).Hours() / 24)
}

// Today truncates t to midnight of its UTC calendar date.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateDonor checks the registration constraints for a new donor.
func ValidateDonor(d Donor) error {
	if strings.TrimSpace(d.Name) == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if !d.BloodGroup.Valid() {
		return ValidationError{Field: "blood_group", Message: "unknown blood group " + string(d.BloodGroup)}
	}
	if d.Age < MinDonorAge || d.Age > MaxDonorAge {
		return ValidationError{Field: "age", Message: "age must be between 18 and 65"}
	}
	if d.WeightKg < MinDonorWeightKg {
		return ValidationError{Field: "weight_kg", Message: "weight must be at least 50 kg"}
	}
	return nil
}

// ValidateRequest checks the submission constraints for a new blood request.
func ValidateRequest(r BloodRequest) error {
	if strings.TrimSpace(r.PatientName) == "" {
		return ValidationError{Field: "patient_name", Message: "patient name is required"}
	}
	if !r.BloodGroup.Valid() {
		return ValidationError{Field: "blood_group", Message: "unknown blood group " + string(r.BloodGroup)}
	}
	if r.UnitsNeeded <= 0 {
		return ValidationError{Field: "units_needed", Message: "units needed must be positive"}
	}
	if r.Urgency != "" && !r.Urgency.Valid() {
		return ValidationError{Field: "urgency", Message: "unknown urgency " + string(r.Urgency)}
	}
	return nil
}
