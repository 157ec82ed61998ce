package ci

import (
	"regexp"
	"strconv"
	"strings"
)

var percentRe = regexp.MustCompile(`\d+(\.\d+)?`)

// ExtractCoverage scans a build trace with the project's coverage
// regex and returns the percentage from the last match, or nil when
// the regex is empty, invalid, or never matches.
func ExtractCoverage(trace, pattern string) *float64 {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}

	matches := re.FindAllString(trace, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		number := percentRe.FindString(strings.TrimSpace(matches[i]))
		if number == "" {
			continue
		}
		value, err := strconv.ParseFloat(number, 64)
		if err != nil {
			continue
		}
		return &value
	}
	return nil
}
