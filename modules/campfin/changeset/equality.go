package changeset

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

// Equal compares a mapped value with a stored value under the target type.
// Both sides are normalised first, so a value read back from storage equals
// the value that was written.
func Equal(typ mapping.TargetType, a, b any) bool {
	ca, okA := canonical(typ, a)
	cb, okB := canonical(typ, b)
	if !okA || !okB {
		return !okA && !okB
	}
	return ca == cb
}

// canonical returns a comparable form of v. The second result is false for null.
func canonical(typ mapping.TargetType, v any) (any, bool) {
	v = unwrap(v)
	if v == nil {
		return nil, false
	}
	switch typ {
	case mapping.TypeInteger:
		switch n := v.(type) {
		case int64:
			return n, true
		case int32:
			return int64(n), true
		case int16:
			return int64(n), true
		case int:
			return int64(n), true
		case float64:
			return int64(n), true
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return i, true
			}
		}
	case mapping.TypeFloat:
		switch n := v.(type) {
		case float64:
			return roundFloat(n), true
		case float32:
			return roundFloat(float64(n)), true
		case int64:
			return roundFloat(float64(n)), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return roundFloat(f), true
			}
		}
	case mapping.TypeMoney:
		if d, ok := toDecimal(v); ok {
			return d.Round(2).StringFixed(2), true
		}
	case mapping.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, true
		}
	case mapping.TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.DateOnly), true
		}
		if s, ok := v.(string); ok && len(s) >= 10 {
			return s[:10], true
		}
	case mapping.TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Truncate(time.Microsecond).UnixMicro(), true
		}
	case mapping.TypeString:
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return fmt.Sprint(v), true
}

func unwrap(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return *x
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal
	case decimal.Decimal:
		return x
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return v
		}
		return dv
	}
	return v
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(string(n))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func roundFloat(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
