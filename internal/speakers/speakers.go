// Package speakers parses operator-supplied speaker attribution strings.
//
// The transcription pipeline labels diarized speakers with opaque ids like
// "speaker_00". Operators map those ids to names using the compact form
// accepted by the slash command:
//
//	speaker_00:Alice, speaker_01:Bob
package speakers

import (
	"fmt"
	"strings"
)

// FormatHint is shown to operators when their input cannot be parsed.
const FormatHint = "speaker_00:name,speaker_01:name"

// ParseError describes why an attribution string was rejected. The message
// is shown verbatim to the operator, so it names the offending pair.
type ParseError struct {
	Pair   string // the pair that failed, empty for whole-input errors
	Reason string
}

func (e *ParseError) Error() string {
	if e.Pair == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid pair %q: %s", e.Pair, e.Reason)
}

// ParseMap parses a comma-separated list of speaker-id:name pairs into a map.
// Whitespace around pairs, ids and names is trimmed. Returns a ParseError if
// the input is empty, a pair is missing its colon, an id or name is empty,
// or an id appears twice.
func ParseMap(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &ParseError{Reason: "metadata must not be empty"}
	}

	result := make(map[string]string)
	for _, raw := range strings.Split(s, ",") {
		pair := strings.TrimSpace(raw)
		if pair == "" {
			return nil, &ParseError{Pair: raw, Reason: "empty pair"}
		}

		id, name, found := strings.Cut(pair, ":")
		if !found {
			return nil, &ParseError{Pair: pair, Reason: "missing ':' separator"}
		}

		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" {
			return nil, &ParseError{Pair: pair, Reason: "empty speaker id"}
		}
		if name == "" {
			return nil, &ParseError{Pair: pair, Reason: "empty speaker name"}
		}
		if strings.Contains(name, ":") {
			return nil, &ParseError{Pair: pair, Reason: "name must not contain ':'"}
		}
		if _, exists := result[id]; exists {
			return nil, &ParseError{Pair: pair, Reason: "duplicate speaker id"}
		}

		result[id] = name
	}

	return result, nil
}
