// Package ids implements the small value-format grammars the coordination
// engine needs to round-trip across the wire: durations, booleans, scores,
// versions, and the canonical resource-action identity key.
package ids

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// InfinityMagnitude is the large finite value Pacemaker-style "INFINITY"
// sentinels map to.
const InfinityMagnitude = 1_000_000

// ParseDuration accepts either a bare millisecond count ("20000") or a
// suffixed duration ("20s", "500ms", "1h"). An empty string or "0" means
// no dampening.
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	unit := s[len(s)-1:]
	var mult int64
	var numPart string
	switch {
	case strings.HasSuffix(s, "ms"):
		mult = 1
		numPart = s[:len(s)-2]
	case unit == "s":
		mult = 1000
		numPart = s[:len(s)-1]
	case unit == "m":
		mult = 60 * 1000
		numPart = s[:len(s)-1]
	case unit == "h":
		mult = 60 * 60 * 1000
		numPart = s[:len(s)-1]
	default:
		return 0, fmt.Errorf("ids: invalid duration %q", s)
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ids: invalid duration %q: %w", s, err)
	}
	return n * mult, nil
}

// FormatDuration renders a millisecond count back to the "Nunit" form,
// choosing the largest unit that divides evenly.
func FormatDuration(ms int64) string {
	switch {
	case ms == 0:
		return "0"
	case ms%(60*60*1000) == 0:
		return fmt.Sprintf("%dh", ms/(60*60*1000))
	case ms%(60*1000) == 0:
		return fmt.Sprintf("%dm", ms/(60*1000))
	case ms%1000 == 0:
		return fmt.Sprintf("%ds", ms/1000)
	default:
		return fmt.Sprintf("%dms", ms)
	}
}

var truthy = map[string]bool{"true": true, "yes": true, "on": true, "1": true}
var falsy = map[string]bool{"false": true, "no": true, "off": true, "0": true}

// ParseBool accepts the case-insensitive true/false spellings §6.4 defines.
func ParseBool(s string) (bool, error) {
	l := strings.ToLower(strings.TrimSpace(s))
	if truthy[l] {
		return true, nil
	}
	if falsy[l] {
		return false, nil
	}
	return false, fmt.Errorf("ids: invalid boolean %q", s)
}

// ParseScore parses a signed integer score, recognizing the INFINITY
// sentinels and mapping them to ±InfinityMagnitude.
func ParseScore(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "INFINITY", "+INFINITY":
		return InfinityMagnitude, nil
	case "-INFINITY":
		return -InfinityMagnitude, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("ids: invalid score %q: %w", s, err)
	}
	if n > InfinityMagnitude {
		n = InfinityMagnitude
	}
	if n < -InfinityMagnitude {
		n = -InfinityMagnitude
	}
	return n, nil
}

// FormatScore is the inverse of ParseScore; the sentinels round-trip
// bijectively to their magnitudes.
func FormatScore(n int) string {
	switch {
	case n == InfinityMagnitude:
		return "INFINITY"
	case n == -InfinityMagnitude:
		return "-INFINITY"
	default:
		return strconv.Itoa(n)
	}
}

// CompareVersions compares two dotted-decimal version strings component by
// component, numerically. It returns -1, 0, or 1 like strings.Compare.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

var expandRe = regexp.MustCompile(`^(.*?)(\+\+|\+=(-?\d+))$`)

// Expand implements the "<prefix>++" / "<prefix>+=N" value-expansion
// mini-grammar (§9): the result is the decimal string of old+1 or old+N,
// with old treated as 0 when it isn't numeric. Any other value passes
// through unchanged.
func Expand(value, old string) string {
	m := expandRe.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	base, err := strconv.Atoi(strings.TrimSpace(old))
	if err != nil {
		base = 0
	}
	delta := 1
	if m[2] != "++" {
		d, err := strconv.Atoi(m[3])
		if err != nil {
			delta = 0
		} else {
			delta = d
		}
	}
	result := int64(base) + int64(delta)
	const maxInt32 = int64(1<<31 - 1)
	const minInt32 = -int64(1 << 31)
	if result > maxInt32 {
		result = maxInt32
	}
	if result < minInt32 {
		result = minInt32
	}
	return strconv.FormatInt(result, 10)
}

// OperationKey formats the canonical "<rsc_id>_<operation>_<interval_ms>"
// identity string (§6.5).
func OperationKey(rscID, operation string, intervalMs int64) string {
	return fmt.Sprintf("%s_%s_%d", rscID, operation, intervalMs)
}

var opKeyRe = regexp.MustCompile(`^(.*)_([^_]+)_(\d+)$`)

// ParseOperationKey is the inverse of OperationKey.
func ParseOperationKey(key string) (rscID, operation string, intervalMs int64, err error) {
	m := opKeyRe.FindStringSubmatch(key)
	if m == nil {
		return "", "", 0, fmt.Errorf("ids: invalid operation key %q", key)
	}
	n, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("ids: invalid operation key %q: %w", key, err)
	}
	return m[1], m[2], n, nil
}
