package extract

import (
	"encoding/json"
	"strings"
)

// jsonPayload returns the JSON document embedded in the text, or "" when
// there is none. OCR backends sometimes wrap output in markdown fences or
// surround the JSON with stray characters, so fences are stripped and a
// first-brace-to-last-brace slice is tried before giving up.
func jsonPayload(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if (text[0] == '{' || text[0] == '[') && json.Valid([]byte(text)) {
		return text
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	sliced := text[start : end+1]
	if json.Valid([]byte(sliced)) {
		return sliced
	}
	return ""
}

// walkJSONStrings calls fn for every string-valued leaf of the JSON
// document, depth first in document order. Object keys are skipped. The
// token stream is used instead of unmarshaling into a map so that the
// original key order survives.
func walkJSONStrings(payload string, fn func(string)) {
	dec := json.NewDecoder(strings.NewReader(payload))
	_ = walkValue(dec, fn)
}

func walkValue(dec *json.Decoder, fn func(string)) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				if _, err := dec.Token(); err != nil { // key
					return err
				}
				if err := walkValue(dec, fn); err != nil {
					return err
				}
			}
			_, err := dec.Token() // closing brace
			return err
		case '[':
			for dec.More() {
				if err := walkValue(dec, fn); err != nil {
					return err
				}
			}
			_, err := dec.Token() // closing bracket
			return err
		}
	case string:
		fn(t)
	}
	return nil
}
