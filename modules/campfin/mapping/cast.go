package mapping

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	errNotNumeric = errors.New("not a number")
	errNotBoolean = errors.New("not a boolean")
	errNotDate    = errors.New("unrecognised date")
	errFraction   = errors.New("integer has a fractional part")
)

// dateLayouts are tried in order; the upstream systems are hand-keyed.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
	"2006/01/02",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"01-02-2006",
	"1-2-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"02-Jan-06",
	"20060102",
}

// numericClean strips everything but digits and dots and reports whether the
// value was written as negative, either parenthesised or with a leading minus.
func numericClean(raw string) (string, bool, error) {
	s := strings.TrimSpace(raw)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "$-") {
		negative = true
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || strings.Trim(cleaned, ".") == "" || strings.Count(cleaned, ".") > 1 {
		return "", false, errNotNumeric
	}
	return cleaned, negative, nil
}

func castFloat(raw string) (float64, error) {
	cleaned, negative, err := numericClean(raw)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, errNotNumeric
	}
	if negative {
		f = -f
	}
	return f, nil
}

func castInteger(raw string) (int64, error) {
	cleaned, negative, err := numericClean(raw)
	if err != nil {
		return 0, err
	}
	var n int64
	if strings.Contains(cleaned, ".") {
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, errNotNumeric
		}
		if f != math.Trunc(f) {
			return 0, errFraction
		}
		n = int64(f)
	} else {
		n, err = strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return 0, errNotNumeric
		}
	}
	if negative {
		n = -n
	}
	return n, nil
}

func castMoney(raw string) (decimal.Decimal, error) {
	cleaned, negative, err := numericClean(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, errNotNumeric
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func castBoolean(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "x":
		return true, nil
	case "0", "false", "f", "no", "n":
		return false, nil
	default:
		return false, errNotBoolean
	}
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNotDate
}

func castDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := parseTime(raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func castTimestamp(raw string, loc *time.Location) (time.Time, error) {
	t, err := parseTime(raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func castString(raw string, maxLen int) string {
	s := strings.TrimSpace(raw)
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		s = string([]rune(s)[:maxLen])
	}
	return s
}
