package validate

import "strings"

// LicenseResult is the compliance signal fed into trust scoring.
type LicenseResult struct {
	License    string  `json:"license"`
	Compatible bool    `json:"compatible"`
	Score      float64 `json:"score"`
}

// permissiveLicenses score full marks for redistribution inside composed
// graphs. Copyleft licenses are admissible but scored down; unknown
// licenses sit in between.
var permissiveLicenses = map[string]bool{
	"mit":          true,
	"bsd-2-clause": true,
	"bsd-3-clause": true,
	"apache-2.0":   true,
	"isc":          true,
	"unlicense":    true,
	"cc0-1.0":      true,
}

var copyleftLicenses = map[string]bool{
	"gpl-2.0":  true,
	"gpl-3.0":  true,
	"agpl-3.0": true,
	"lgpl-3.0": true,
}

// CheckLicense evaluates a declared license identifier.
func CheckLicense(license string) LicenseResult {
	id := strings.ToLower(strings.TrimSpace(license))

	switch {
	case permissiveLicenses[id]:
		return LicenseResult{License: license, Compatible: true, Score: 1.0}
	case copyleftLicenses[id]:
		return LicenseResult{License: license, Compatible: true, Score: 0.3}
	case id == "":
		return LicenseResult{License: license, Compatible: false, Score: 0.0}
	default:
		return LicenseResult{License: license, Compatible: true, Score: 0.5}
	}
}
