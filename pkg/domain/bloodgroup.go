package domain

import (
	"strings"
)

// BloodGroup is one of the eight ABO/Rh blood groups.
type BloodGroup string

// The eight supported blood groups.
const (
	APositive  BloodGroup = "A+"
	ANegative  BloodGroup = "A-"
	BPositive  BloodGroup = "B+"
	BNegative  BloodGroup = "B-"
	ABPositive BloodGroup = "AB+"
	ABNegative BloodGroup = "AB-"
	OPositive  BloodGroup = "O+"
	ONegative  BloodGroup = "O-"
)

// allBloodGroups is the canonical display order.
var allBloodGroups = [...]BloodGroup{APositive, ANegative, BPositive, BNegative, ABPositive, ABNegative, OPositive, ONegative}

// donatesTo maps a donor group to the recipient groups it may supply.
var donatesTo = map[BloodGroup][]BloodGroup{
	APositive:  {APositive, ABPositive},
	ANegative:  {APositive, ANegative, ABPositive, ABNegative},
	BPositive:  {BPositive, ABPositive},
	BNegative:  {BPositive, BNegative, ABPositive, ABNegative},
	ABPositive: {ABPositive},
	ABNegative: {ABPositive, ABNegative},
	OPositive:  {APositive, BPositive, ABPositive, OPositive},
	ONegative:  {APositive, ANegative, BPositive, BNegative, ABPositive, ABNegative, OPositive, ONegative},
}

// receivesFrom maps a recipient group to the donor groups it may accept.
var receivesFrom = map[BloodGroup][]BloodGroup{
	APositive:  {APositive, ANegative, OPositive, ONegative},
	ANegative:  {ANegative, ONegative},
	BPositive:  {BPositive, BNegative, OPositive, ONegative},
	BNegative:  {BNegative, ONegative},
	ABPositive: {APositive, ANegative, BPositive, BNegative, ABPositive, ABNegative, OPositive, ONegative},
	ABNegative: {ANegative, BNegative, ABNegative, ONegative},
	OPositive:  {OPositive, ONegative},
	ONegative:  {ONegative},
}

// AllBloodGroups returns the eight blood groups in canonical order.
func AllBloodGroups() []BloodGroup {
	out := make([]BloodGroup, len(allBloodGroups))
	copy(out, allBloodGroups[:])
	return out
}

// ParseBloodGroup normalises user input such as "ab+" or "O−" into a BloodGroup.
func ParseBloodGroup(raw string) (BloodGroup, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("−", "-", "–", "-", " ", "").Replace(s)
	g := BloodGroup(s)
	if !g.Valid() {
		return "", ValidationError{Field: "blood_group", Message: "unknown blood group " + strings.TrimSpace(raw)}
	}
	return g, nil
}

// Valid reports whether g is one of the eight supported groups.
func (g BloodGroup) Valid() bool {
	_, ok := donatesTo[g]
	return ok
}

// DonatesTo returns the recipient groups a donor of group g may supply. The
// result is empty for unknown groups.
func DonatesTo(g BloodGroup) []BloodGroup {
	return append([]BloodGroup(nil), donatesTo[g]...)
}

// ReceivesFrom returns the donor groups a recipient of group g may accept.
// The result is empty for unknown groups.
func ReceivesFrom(g BloodGroup) []BloodGroup {
	return append([]BloodGroup(nil), receivesFrom[g]...)
}

// CanDonateTo reports whether a donor of group donor may supply a recipient of
// group recipient.
func CanDonateTo(donor, recipient BloodGroup) bool {
	for _, g := range donatesTo[donor] {
		if g == recipient {
			return true
		}
	}
	return false
}
