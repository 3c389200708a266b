package verify

import (
	"regexp"
	"strconv"
	"strings"
)

var dmsPattern = regexp.MustCompile(`(?i)^(\d{1,3})°\s*(\d{1,2})′\s*(\d{1,2}(?:\.\d+)?)″\s*([NSEW])`)

// DMSCoordinate reports whether candidate is a degrees/minutes/seconds
// coordinate such as 37°46′29.7″N with in-range components
func DMSCoordinate(candidate string) bool {
	m := dmsPattern.FindStringSubmatch(candidate)
	if m == nil {
		return false
	}

	degrees, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return false
	}

	if minutes > 59 || seconds >= 60 {
		return false
	}

	switch strings.ToUpper(m[4]) {
	case "N", "S":
		return degrees <= 90
	default:
		return degrees <= 180
	}
}
