// Package dependents turns mapped transaction export rows into the records
// hanging off a filing: transactions, loans and special events.
package dependents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nmcampfin/campfin-etl/modules/campfin/contacts"
	"github.com/nmcampfin/campfin-etl/modules/campfin/mapping"
)

type Kind string

const (
	KindTransaction  Kind = "transaction"
	KindLoan         Kind = "loan"
	KindSpecialEvent Kind = "special_event"
)

// Class is the export a dependent came from. A load only ever replaces
// dependents of its own class.
type Class string

const (
	ClassContributions Class = "CON"
	ClassExpenditures  Class = "EXP"
)

func ParseClass(s string) (Class, error) {
	switch Class(strings.ToUpper(strings.TrimSpace(s))) {
	case ClassContributions:
		return ClassContributions, nil
	case ClassExpenditures:
		return ClassExpenditures, nil
	}
	return "", fmt.Errorf("unknown transaction type %q (expected CON or EXP)", s)
}

// Transaction type descriptions seeded by the baseline migration.
const (
	TypeMonetaryContribution  = "Monetary Contribution"
	TypeInKindContribution    = "In-Kind Contribution"
	TypeReturnContribution    = "Return Contribution"
	TypeAnonymousContribution = "Anonymous Contribution"
	TypeMonetaryExpenditure   = "Monetary Expenditure"
	LoanPayment               = "Payment"
)

const (
	descriptionMaxLen = 74
	unknownSponsor    = "Not specified"
)

var ErrUnknownType = errors.New("unknown contribution type")

// Dependent is one record of a filing before its references are resolved.
type Dependent struct {
	Kind Kind
	// Type is the transaction type description; empty for loans and events.
	Type        string
	Amount      decimal.Decimal
	Date        *time.Time
	CheckNumber string
	Description string
	Party       contacts.Contact
	// CompanyName is denormalised onto the stored row and never null.
	CompanyName string
	Sponsors    string
	SourceKey   string
}

// FromContribution dispatches a contribution export row on its type.
func FromContribution(rec mapping.Record) (Dependent, error) {
	d := base(rec)
	d.Party = contacts.FromParty(party(rec, rec.String("contributor_code")))
	d.CompanyName = rec.String("company_name")

	typ := rec.String("transaction_type")
	lower := strings.ToLower(strings.TrimSpace(typ))
	switch {
	case lower == "loans received":
		d.Kind = KindLoan
	case lower == "special event":
		d.Kind = KindSpecialEvent
		d.Sponsors = d.CompanyName
		if d.Sponsors == "" {
			d.Sponsors = unknownSponsor
		}
	case strings.Contains(lower, "contribution"):
		d.Kind = KindTransaction
		d.Type = contributionType(lower)
	default:
		return Dependent{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return d, nil
}

// FromExpenditure builds the expenditure of one export row. The payee is the
// contact; the description falls back to the expenditure type.
func FromExpenditure(rec mapping.Record) Dependent {
	d := base(rec)
	d.Kind = KindTransaction
	d.Type = TypeMonetaryExpenditure

	p := party(rec, "Individual")
	if p.FirstName == "" && p.LastName == "" {
		p = contacts.Party{
			Code:     "Business",
			LastName: rec.String("company_name"),
			Address1: p.Address1,
			Address2: p.Address2,
			City:     p.City,
			State:    p.State,
			Zipcode:  p.Zipcode,
		}
	}
	d.Party = contacts.FromParty(p)
	d.CompanyName = d.Party.FullName

	desc := rec.String("description")
	if desc == "" {
		desc = rec.String("expenditure_type")
	}
	d.Description = truncate(desc, descriptionMaxLen)
	return d
}

func base(rec mapping.Record) Dependent {
	d := Dependent{
		CheckNumber: rec.String("check_number"),
		Description: rec.String("description"),
	}
	d.Amount, _ = rec.Money("amount")
	if t, ok := rec.Time("received_date"); ok {
		d.Date = &t
	}
	return d
}

func party(rec mapping.Record, code string) contacts.Party {
	if code == "" {
		code = "Individual"
	}
	return contacts.Party{
		Code:       code,
		Prefix:     rec.String("prefix"),
		FirstName:  rec.String("first_name"),
		MiddleName: rec.String("middle_name"),
		LastName:   rec.String("last_name"),
		Suffix:     rec.String("suffix"),
		Employer:   rec.String("company_name"),
		Occupation: rec.String("occupation"),
		Address1:   rec.String("address_1"),
		Address2:   rec.String("address_2"),
		City:       rec.String("city"),
		State:      rec.String("state"),
		Zipcode:    rec.String("zipcode"),
	}
}

// contributionType maps a lowercased export type onto a seeded type.
func contributionType(lower string) string {
	switch {
	case strings.Contains(lower, "in-kind"), strings.Contains(lower, "in kind"):
		return TypeInKindContribution
	case strings.Contains(lower, "return"):
		return TypeReturnContribution
	case strings.Contains(lower, "anonymous"):
		return TypeAnonymousContribution
	default:
		return TypeMonetaryContribution
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// AssignSourceKeys derives a stable key for every dependent of one filing.
// Identical rows are told apart by their occurrence order, so re-reading the
// same export yields the same keys.
func AssignSourceKeys(ds []Dependent) {
	seen := make(map[string]int, len(ds))
	for i := range ds {
		base := ds[i].identity()
		n := seen[base]
		seen[base] = n + 1
		ds[i].SourceKey = contacts.Hash(map[string]any{"row": base, "occurrence": n})
	}
}

func (d Dependent) identity() string {
	date := ""
	if d.Date != nil {
		date = d.Date.UTC().Format(time.RFC3339)
	}
	return contacts.Hash(map[string]any{
		"kind":         string(d.Kind),
		"type":         d.Type,
		"contact":      d.Party.Fingerprint(),
		"amount":       d.Amount.StringFixed(2),
		"date":         date,
		"check_number": d.CheckNumber,
		"description":  d.Description,
		"sponsors":     d.Sponsors,
	})
}
