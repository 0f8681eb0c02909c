// Package eligibility classifies Brazilian region codes for the
// qualification workflow. Pure lookup, no state beyond the configured sets.
package eligibility

import (
	"sort"
	"strings"
)

// Outcome is the three-way region classification.
type Outcome string

const (
	// Eligible regions can book a visit.
	Eligible Outcome = "eligible"
	// Interest regions are recorded for future expansion but cannot book.
	Interest Outcome = "interest"
	// Ineligible covers everything else, including unknown codes.
	Ineligible Outcome = "ineligible"
)

// regionNames maps UF codes to display names, used by the admin surface.
var regionNames = map[string]string{
	"AC": "Acre", "AL": "Alagoas", "AP": "Amapá", "AM": "Amazonas",
	"BA": "Bahia", "CE": "Ceará", "DF": "Distrito Federal", "ES": "Espírito Santo",
	"GO": "Goiás", "MA": "Maranhão", "MT": "Mato Grosso", "MS": "Mato Grosso do Sul",
	"MG": "Minas Gerais", "PA": "Pará", "PB": "Paraíba", "PR": "Paraná",
	"PE": "Pernambuco", "PI": "Piauí", "RJ": "Rio de Janeiro", "RN": "Rio Grande do Norte",
	"RS": "Rio Grande do Sul", "RO": "Rondônia", "RR": "Roraima", "SC": "Santa Catarina",
	"SP": "São Paulo", "SE": "Sergipe", "TO": "Tocantins",
}

// Classifier maps a region code to an Outcome using two disjoint sets.
type Classifier struct {
	eligible map[string]bool
	interest map[string]bool
}

// New builds a classifier from the configured region sets. Codes are
// normalized to upper case; a code present in both sets counts as eligible.
func New(eligibleRegions, interestRegions []string) *Classifier {
	c := &Classifier{
		eligible: make(map[string]bool, len(eligibleRegions)),
		interest: make(map[string]bool, len(interestRegions)),
	}
	for _, r := range eligibleRegions {
		c.eligible[normalize(r)] = true
	}
	for _, r := range interestRegions {
		c.interest[normalize(r)] = true
	}
	return c
}

// Classify returns the outcome for a region code. Codes outside both sets,
// including malformed or empty input, are ineligible.
func (c *Classifier) Classify(region string) Outcome {
	code := normalize(region)
	if c.eligible[code] {
		return Eligible
	}
	if c.interest[code] {
		return Interest
	}
	return Ineligible
}

// RegionName returns the display name for a UF code, or the code itself
// when unknown.
func RegionName(code string) string {
	if name, ok := regionNames[normalize(code)]; ok {
		return name
	}
	return code
}

// IsKnownRegion reports whether the code is a valid Brazilian UF.
func IsKnownRegion(code string) bool {
	_, ok := regionNames[normalize(code)]
	return ok
}

// FindRegion scans free text for a region mention. UF codes must appear as
// standalone upper-case tokens ("Moro em RS") to avoid false hits on common
// Portuguese syllables; full state names match case-insensitively.
func FindRegion(text string) (string, bool) {
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'))
	}) {
		if len(token) == 2 && token == strings.ToUpper(token) && IsKnownRegion(token) {
			return normalize(token), true
		}
	}

	lower := strings.ToLower(text)
	for _, code := range regionsByNameLength() {
		if strings.Contains(lower, strings.ToLower(regionNames[code])) {
			return code, true
		}
	}

	return "", false
}

// regionsByNameLength orders codes so longer names match first
// ("Mato Grosso do Sul" before "Mato Grosso").
func regionsByNameLength() []string {
	codes := make([]string, 0, len(regionNames))
	for code := range regionNames {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		return len(regionNames[codes[i]]) > len(regionNames[codes[j]])
	})
	return codes
}

func normalize(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}
