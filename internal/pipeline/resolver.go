package pipeline

import (
	"errors"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/decode"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/extract"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/validate"
)

// ErrNoIdentifierFound is returned when the full escalation produced no
// candidate at all. It is a terminal per-image outcome, not a crash.
var ErrNoIdentifierFound = errors.New("no identifier found")

// Result is the single identifier reported for one image.
type Result struct {
	Identifier string              `json:"identifier"`
	Kind       extract.Kind        `json:"kind"`
	Origin     extract.Origin      `json:"origin"`
	Method     decode.SourceMethod `json:"method"`

	// Fallback marks the lenient path: the identifier was reported even
	// though it failed validation, with Reason carrying the failure.
	Fallback bool            `json:"fallback,omitempty"`
	Reason   validate.Reason `json:"reason"`

	Attempts []Attempt `json:"attempts,omitempty"`
}

// Resolve picks the single reported identifier from the candidate lists
// accumulated across decode attempts:
//
//  1. the first IMEI candidate that validates,
//  2. else the first IMEI candidate anyway (lenient fallback, reported
//     with its rejection reason),
//  3. else the first mobile candidate, unvalidated,
//  4. else ErrNoIdentifierFound.
func Resolve(imeis, mobiles []Candidate, attempts []Attempt) (*Result, error) {
	for _, c := range imeis {
		if v := validate.IMEI(c.Value); v.IsValid {
			return &Result{
				Identifier: c.Value,
				Kind:       c.Kind,
				Origin:     c.Origin,
				Method:     c.Method,
				Reason:     validate.ReasonNone,
				Attempts:   attempts,
			}, nil
		}
	}

	if len(imeis) > 0 {
		first := imeis[0]
		return &Result{
			Identifier: first.Value,
			Kind:       first.Kind,
			Origin:     first.Origin,
			Method:     first.Method,
			Fallback:   true,
			Reason:     validate.IMEI(first.Value).Reason,
			Attempts:   attempts,
		}, nil
	}

	if len(mobiles) > 0 {
		first := mobiles[0]
		return &Result{
			Identifier: first.Value,
			Kind:       first.Kind,
			Origin:     first.Origin,
			Method:     first.Method,
			Reason:     validate.ReasonNone,
			Attempts:   attempts,
		}, nil
	}

	return nil, ErrNoIdentifierFound
}
