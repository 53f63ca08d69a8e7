package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	treatmentCodePattern = regexp.MustCompile(`^([A-Z])-(\d{4,})$`)
	requestCodePattern   = regexp.MustCompile(`^([A-Z])-(\d{4,})(?:/(\d+))?$`)
)

// Treatment code prefixes.
const (
	PrefixInternal = "A"
	PrefixExternal = "C"
)

// PrefixFor maps a case origin to its treatment code prefix.
func PrefixFor(origin CaseOrigin) string {
	if origin == OriginExternal {
		return PrefixExternal
	}
	return PrefixInternal
}

// RequestCode is a parsed lab request code.
type RequestCode struct {
	Prefix   string
	Sequence int
	Revision int // zero for a base code
}

// Base returns the treatment code portion.
func (c RequestCode) Base() string {
	return fmt.Sprintf("%s-%04d", c.Prefix, c.Sequence)
}

func (c RequestCode) String() string {
	if c.Revision == 0 {
		return c.Base()
	}
	return fmt.Sprintf("%s/%d", c.Base(), c.Revision)
}

// ParseRequestCode parses base (`A-0001`) and revision (`A-0001/2`) codes.
func ParseRequestCode(code string) (RequestCode, bool) {
	m := requestCodePattern.FindStringSubmatch(code)
	if m == nil {
		return RequestCode{}, false
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return RequestCode{}, false
	}
	rc := RequestCode{Prefix: m[1], Sequence: seq}
	if m[3] != "" {
		rev, err := strconv.Atoi(m[3])
		if err != nil {
			return RequestCode{}, false
		}
		rc.Revision = rev
	}
	return rc, true
}

// IsTreatmentCode reports whether code is a base treatment code.
func IsTreatmentCode(code string) bool {
	return treatmentCodePattern.MatchString(code)
}

// NextTreatmentCode scans every case and lab item for the highest sequence in
// use under prefix and returns the next code.
//
// The scan is O(n) and only safe under the store's single-writer transaction.
func NextTreatmentCode(prefix string, cases []Case, items []LabItem) string {
	highest := 0
	consider := func(code string) {
		rc, ok := ParseRequestCode(code)
		if ok && rc.Prefix == prefix && rc.Sequence > highest {
			highest = rc.Sequence
		}
	}
	for _, c := range cases {
		consider(c.TreatmentCode)
	}
	for _, item := range items {
		consider(item.RequestCode)
	}
	return RequestCode{Prefix: prefix, Sequence: highest + 1}.String()
}

// NextRequestCode returns the request code for a new order of kind against
// treatmentCode. The first production order reuses the treatment code; any
// later order gets treatmentCode/revision with revision one past the highest
// already used.
func NextRequestCode(treatmentCode string, kind RequestKind, items []LabItem) string {
	base, ok := ParseRequestCode(treatmentCode)
	if !ok {
		return treatmentCode
	}
	baseTaken := false
	highest := 0
	for _, item := range items {
		rc, ok := ParseRequestCode(item.RequestCode)
		if !ok || rc.Base() != base.Base() {
			continue
		}
		if rc.Revision == 0 {
			baseTaken = true
		}
		if rc.Revision > highest {
			highest = rc.Revision
		}
	}
	if kind == RequestProduction && !baseTaken {
		return base.Base()
	}
	base.Revision = highest + 1
	return base.String()
}
