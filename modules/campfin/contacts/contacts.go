// Package contacts normalises transaction parties and derives the structural
// fingerprints used to deduplicate contacts and addresses.
package contacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

var spaces = regexp.MustCompile(`\s+`)

// personCodes are contributor codes recorded with name parts. Every other
// code is a company whose name is the joined name parts.
var personCodes = map[string]struct{}{
	"Individual": {},
	"Candidate":  {},
}

type Address struct {
	Street  string
	City    string
	State   string
	Zipcode string
}

type Contact struct {
	ContactType string
	Prefix      string
	FirstName   string
	MiddleName  string
	LastName    string
	Suffix      string
	FullName    string
	CompanyName string
	Occupation  string
	Address     Address
}

// Party is a transaction party as it appears in an export row.
type Party struct {
	Code       string
	Prefix     string
	FirstName  string
	MiddleName string
	LastName   string
	Suffix     string
	Employer   string
	Occupation string
	Address1   string
	Address2   string
	City       string
	State      string
	Zipcode    string
}

// Normalize collapses whitespace in s and trims it.
func Normalize(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// FullName joins name parts with single spaces, skipping empty parts.
func FullName(parts ...string) string {
	return Normalize(strings.Join(parts, " "))
}

func NewAddress(line1, line2, city, state, zip string) Address {
	street := Normalize(line1)
	if l2 := Normalize(line2); l2 != "" {
		street = Normalize(street + " " + l2)
	}
	return Address{
		Street:  street,
		City:    Normalize(city),
		State:   strings.ToUpper(Normalize(state)),
		Zipcode: Normalize(zip),
	}
}

func (a Address) Empty() bool {
	return a == Address{}
}

func (a Address) Fingerprint() string {
	return Hash(map[string]any{
		"street":  a.Street,
		"city":    a.City,
		"state":   a.State,
		"zipcode": a.Zipcode,
	})
}

// FromParty builds the contact for a party. Company parties keep only the
// joined name as company name; people keep their parts and employer.
func FromParty(p Party) Contact {
	code := Normalize(p.Code)
	full := FullName(p.Prefix, p.FirstName, p.MiddleName, p.LastName, p.Suffix)
	c := Contact{
		ContactType: code,
		Address:     NewAddress(p.Address1, p.Address2, p.City, p.State, p.Zipcode),
	}
	if _, person := personCodes[code]; !person {
		c.CompanyName = full
		c.FullName = full
		return c
	}
	c.Prefix = Normalize(p.Prefix)
	c.FirstName = Normalize(p.FirstName)
	c.MiddleName = Normalize(p.MiddleName)
	c.LastName = Normalize(p.LastName)
	c.Suffix = Normalize(p.Suffix)
	c.FullName = full
	c.CompanyName = Normalize(p.Employer)
	c.Occupation = Normalize(p.Occupation)
	return c
}

// Fingerprint covers the identity tuple of a contact: name fields, address
// and contact type. Two contacts with equal tuples share a fingerprint.
func (c Contact) Fingerprint() string {
	return Hash(map[string]any{
		"contact_type": c.ContactType,
		"prefix":       c.Prefix,
		"first_name":   c.FirstName,
		"middle_name":  c.MiddleName,
		"last_name":    c.LastName,
		"suffix":       c.Suffix,
		"company_name": c.CompanyName,
		"occupation":   c.Occupation,
		"address":      c.Address.Fingerprint(),
	})
}

// Hash returns the sha256 of a canonical, key-sorted JSON rendering of data.
func Hash(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(data[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
