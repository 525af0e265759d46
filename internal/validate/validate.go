// Package validate holds the pure acceptance rules for IMEI candidates:
// structural length check, Luhn checksum and the denylist of known
// non-identifier product barcodes.
package validate

import "strings"

// IMEILength is the number of digits in a valid IMEI.
const IMEILength = 15

// Reason describes why a candidate was rejected.
type Reason string

const (
	ReasonNone        Reason = "none"
	ReasonBadLength   Reason = "bad_length"
	ReasonBadChecksum Reason = "bad_checksum"
	ReasonDenylisted  Reason = "denylisted"
)

// Result is the outcome of validating one candidate value.
type Result struct {
	Value   string
	IsValid bool
	Reason  Reason
}

// denylistPrefixes are leading digits of product barcodes (GS1 prefixes of
// common phone accessories) that pass the length check but are never IMEIs.
var denylistPrefixes = []string{"690", "691", "692", "693", "694", "695"}

// denylistValues are specific barcode values seen on packaging that
// repeatedly leak through as candidates.
var denylistValues = map[string]bool{
	"6932204509475": true,
	"693220450947":  true,
}

// IsDenylisted reports whether the value is a known non-identifier barcode.
func IsDenylisted(value string) bool {
	if denylistValues[value] {
		return true
	}
	for _, prefix := range denylistPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// IMEI validates a candidate value against the structural check, the Luhn
// checksum and the denylist. The denylist is checked first: a denylisted
// value is rejected regardless of its checksum.
func IMEI(value string) Result {
	if IsDenylisted(value) {
		return Result{Value: value, Reason: ReasonDenylisted}
	}
	if len(value) != IMEILength || !allDigits(value) {
		return Result{Value: value, Reason: ReasonBadLength}
	}
	if !luhnValid(value) {
		return Result{Value: value, Reason: ReasonBadChecksum}
	}
	return Result{Value: value, IsValid: true, Reason: ReasonNone}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// luhnValid treats the 15th digit as the check digit: the Luhn sum runs
// over the first 14 digits with every second digit (1-based positions
// 2,4,...,14) doubled, subtracting 9 from doubled values above 9. The
// candidate is valid iff (10 - sum%10) % 10 equals digit 15.
func luhnValid(value string) bool {
	sum := 0
	for i := 0; i < IMEILength-1; i++ {
		digit := int(value[i] - '0')
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}
	check := (10 - sum%10) % 10
	return check == int(value[IMEILength-1]-'0')
}
