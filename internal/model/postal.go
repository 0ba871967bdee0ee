// Package model defines the postal code record shared by every layer.
package model

import (
	"regexp"
	"strings"
)

var postalCodeRe = regexp.MustCompile(`^\d{4}-\d{3}$`)

// ValidPostalCode reports whether code has the CP7 format NNNN-NNN.
func ValidPostalCode(code string) bool {
	return postalCodeRe.MatchString(code)
}

// Region is the administrative area a postal code belongs to.
type Region struct {
	Concelho string `json:"concelho"`
	Distrito string `json:"distrito"`
}

// Complete reports whether both the municipality and the district are known.
func (r Region) Complete() bool {
	return strings.TrimSpace(r.Concelho) != "" && strings.TrimSpace(r.Distrito) != ""
}

// PostalRecord maps a postal code to its municipality and district.
type PostalRecord struct {
	PostalCode string `json:"postal_code"`
	Concelho   string `json:"concelho"`
	Distrito   string `json:"distrito"`
}

// Region returns the municipality/district half of the record.
func (r PostalRecord) Region() Region {
	return Region{Concelho: r.Concelho, Distrito: r.Distrito}
}

// Incomplete reports whether the municipality or the district is missing.
// Incomplete records are the candidates for enrichment.
func (r PostalRecord) Incomplete() bool {
	return !r.Region().Complete()
}

// WithRegion returns a copy of the record carrying the given region.
func (r PostalRecord) WithRegion(region Region) PostalRecord {
	r.Concelho = region.Concelho
	r.Distrito = region.Distrito
	return r
}
