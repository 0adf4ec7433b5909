// -----------------------------------------------------------------------
// Parsers - salary strings, posted dates, word-boundary matching
// -----------------------------------------------------------------------

package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	salaryAmountRe = regexp.MustCompile(`(?i)\$?\s*(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(k)?`)
	relativeAgeRe  = regexp.MustCompile(`(?i)(\d+)\s*(hour|hr|day|d|week|wk|w|month|mo)s?\s*(?:ago)?`)
	hourlyHintRe   = regexp.MustCompile(`(?i)(/\s*(?:hr|hour)|per\s+hour|hourly)`)
	retirementRe   = regexp.MustCompile(`(?i)401\s*\(?k\)?`)
)

// Posted-date layouts seen across boards, tried in order.
var postedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2 2006",
}

// ParseSalary extracts an annual (min, max) pair from a free-text salary
// string. Single figures report min == max. Figures suffixed "k" and figures
// below 1000 in a salary context are scaled to thousands; hourly rates are
// annualised at 2080 hours. Returns ok == false when no figure parses.
func ParseSalary(s string) (min, max int, ok bool) {
	if strings.TrimSpace(s) == "" {
		return 0, 0, false
	}
	// "401(k) match" would otherwise parse as $401,000.
	s = retirementRe.ReplaceAllString(s, "")
	hourly := hourlyHintRe.MatchString(s)

	var amounts []int
	for _, m := range salaryAmountRe.FindAllStringSubmatch(s, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		switch {
		case strings.EqualFold(m[2], "k"):
			val *= 1000
		case hourly:
			val *= 2080
		case val < 1000:
			// "120-150" in a salary string means thousands.
			val *= 1000
		}
		amounts = append(amounts, int(val))
	}
	if len(amounts) == 0 {
		return 0, 0, false
	}

	min, max = amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	return min, max, true
}

// ParsePostedDate parses the posted-date forms boards emit: absolute layouts,
// epoch seconds or milliseconds, and relative phrases ("3 days ago",
// "today"). Returns ok == false when nothing matches.
func ParsePostedDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range postedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil && epoch > 0 {
		if epoch > 1e12 {
			return time.UnixMilli(epoch), true
		}
		return time.Unix(epoch, 0), true
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "today") || strings.Contains(lower, "just posted") || strings.Contains(lower, "just now"):
		return now, true
	case strings.Contains(lower, "yesterday"):
		return now.AddDate(0, 0, -1), true
	}

	if m := relativeAgeRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "hour", "hr":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "day", "d":
			return now.AddDate(0, 0, -n), true
		case "week", "wk", "w":
			return now.AddDate(0, 0, -7*n), true
		case "month", "mo":
			return now.AddDate(0, -n, 0), true
		}
	}

	return time.Time{}, false
}

// AgeDays reports how many whole days old a posted-date string is.
func AgeDays(s string, now time.Time) (int, bool) {
	t, ok := ParsePostedDate(s, now)
	if !ok {
		return 0, false
	}
	age := int(now.Sub(t).Hours() / 24)
	if age < 0 {
		age = 0
	}
	return age, true
}

// ContainsWord reports whether token appears in text on word boundaries,
// case-insensitively. "go" matches "Go developer" but not "Django".
func ContainsWord(text, token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
