package filing

import "github.com/shopspring/decimal"

// Sums are aggregates over the dependents currently attached to a filing.
type Sums struct {
	Contributions decimal.Decimal
	Expenditures  decimal.Decimal
	Loans         decimal.Decimal
	Inkind        decimal.Decimal
}

type Totals struct {
	Opening       decimal.Decimal
	Contributions decimal.Decimal
	Expenditures  decimal.Decimal
	Loans         decimal.Decimal
	Inkind        decimal.Decimal
	Closing       decimal.Decimal
}

// Compute derives the stored totals from scratch. A missing opening balance
// counts as zero.
func Compute(opening *decimal.Decimal, s Sums) Totals {
	open := decimal.Zero
	if opening != nil {
		open = *opening
	}
	return Totals{
		Opening:       open,
		Contributions: s.Contributions,
		Expenditures:  s.Expenditures,
		Loans:         s.Loans,
		Inkind:        s.Inkind,
		Closing:       open.Add(s.Contributions).Add(s.Loans).Sub(s.Expenditures),
	}
}

// Balanced reports whether t satisfies the closing balance identity.
func (t Totals) Balanced() bool {
	return t.Closing.Equal(t.Opening.Add(t.Contributions).Add(t.Loans).Sub(t.Expenditures))
}
