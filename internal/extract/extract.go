// Package extract turns decoded text into ordered identifier candidates.
// It is pure: no validation beyond the structural shape of candidates
// happens here, except the denylist screen the unlabeled scan applies.
package extract

import (
	"regexp"
	"strings"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/validate"
)

// Kind classifies what a candidate is shaped like.
type Kind string

const (
	KindIMEI   Kind = "imei"
	KindMobile Kind = "mobile"
)

// Origin records how a candidate was found in the text.
type Origin string

const (
	OriginLabeled   Origin = "labeled"
	OriginUnlabeled Origin = "unlabeled"
	OriginJSONWalk  Origin = "json_walk"
)

// Candidate is an identifier-shaped substring, not yet validated.
type Candidate struct {
	Value  string
	Kind   Kind
	Origin Origin
}

var (
	bareIMEIPattern = regexp.MustCompile(`^\d{15}$`)

	// Labeled patterns in priority order: IMEI1 is scanned first so the
	// primary SIM identifier wins when a label prints both. The trailing
	// \b keeps a 15-digit prefix of a longer digit run from matching.
	labeledPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)IMEI1\s*:?\s*(\d{15})\b`),
		regexp.MustCompile(`(?i)IMEI\s*2?\s*:?\s*(\d{15})\b`),
		regexp.MustCompile(`(?i)IMEI/MEID\s*:?\s*(\d{15})\b`),
	}
)

const (
	mobileMinDigits = 10

	// Digit runs up to this length are still kept as mobile-shaped
	// candidates. Some suppliers print 19-digit extended identifiers under
	// an IMEI label; the strict 15-digit IMEI rule cannot accept them, and
	// this lenient tail is the path that still surfaces the value. See the
	// flagged case in the pipeline tests.
	mobileLenientMaxDigits = 19
)

// Extract scans decoded text for IMEI-shaped and mobile-number-shaped
// candidates. Both result lists preserve first-seen order and are
// deduplicated by value, keeping the earliest occurrence.
func Extract(text string) (imeis, mobiles []Candidate) {
	trimmed := strings.TrimSpace(text)

	// A payload that is exactly one IMEI-shaped value needs no scanning.
	if bareIMEIPattern.MatchString(trimmed) && hasIMEILeadDigit(trimmed) {
		return []Candidate{{Value: trimmed, Kind: KindIMEI, Origin: OriginUnlabeled}}, nil
	}

	seenIMEI := make(map[string]bool)
	seenMobile := make(map[string]bool)

	for _, pattern := range labeledPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			value := match[1]
			if seenIMEI[value] {
				continue
			}
			seenIMEI[value] = true
			imeis = append(imeis, Candidate{Value: value, Kind: KindIMEI, Origin: OriginLabeled})
		}
	}

	runs := digitRuns(text)

	for _, run := range runs {
		if len(run) != validate.IMEILength || seenIMEI[run] {
			continue
		}
		if validate.IsDenylisted(run) || !hasIMEILeadDigit(run) {
			continue
		}
		seenIMEI[run] = true
		imeis = append(imeis, Candidate{Value: run, Kind: KindIMEI, Origin: OriginUnlabeled})
	}

	for _, run := range runs {
		if len(run) < mobileMinDigits || len(run) > mobileLenientMaxDigits {
			continue
		}
		// Product barcodes on the denylist must not leak out through the
		// mobile path either.
		if seenMobile[run] || validate.IsDenylisted(run) {
			continue
		}
		seenMobile[run] = true
		mobiles = append(mobiles, Candidate{Value: run, Kind: KindMobile, Origin: OriginUnlabeled})
	}

	// QR payloads on packaging are frequently JSON envelopes; walk every
	// string leaf and extract from each in traversal order.
	if payload := jsonPayload(text); payload != "" {
		walkJSONStrings(payload, func(leaf string) {
			leafIMEIs, leafMobiles := Extract(leaf)
			for _, c := range leafIMEIs {
				if seenIMEI[c.Value] {
					continue
				}
				seenIMEI[c.Value] = true
				c.Origin = OriginJSONWalk
				imeis = append(imeis, c)
			}
			for _, c := range leafMobiles {
				if seenMobile[c.Value] {
					continue
				}
				seenMobile[c.Value] = true
				c.Origin = OriginJSONWalk
				mobiles = append(mobiles, c)
			}
		})
	}

	return imeis, mobiles
}

// hasIMEILeadDigit applies the leading-digit heuristic for unlabeled
// candidates: real phone IMEIs in this inventory start with 8 or 3.
func hasIMEILeadDigit(value string) bool {
	return value != "" && (value[0] == '8' || value[0] == '3')
}

// digitRuns returns the maximal ASCII digit runs of the text in order of
// appearance. Maximal runs are the "substrings with non-digit boundaries"
// the candidate scans operate on.
func digitRuns(text string) []string {
	var runs []string
	start := -1
	for i := 0; i < len(text); i++ {
		isDigit := text[i] >= '0' && text[i] <= '9'
		if isDigit && start == -1 {
			start = i
		}
		if !isDigit && start != -1 {
			runs = append(runs, text[start:i])
			start = -1
		}
	}
	if start != -1 {
		runs = append(runs, text[start:])
	}
	return runs
}
