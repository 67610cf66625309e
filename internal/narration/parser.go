package narration

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"saga-server/internal/models"
)

// ParseTurnOutcome extracts a TurnOutcome from raw model output. Models
// wrap JSON in code fences, prepend chatter or trail commentary, so the
// parser locates the outermost balanced JSON object instead of decoding
// the response verbatim. Unknown fields are ignored; absent fields stay
// zero-valued and are treated as "no change" by the merge.
func ParseTurnOutcome(responseText string) (*models.TurnOutcome, error) {
	if strings.TrimSpace(responseText) == "" {
		return nil, errors.New("empty response to parse")
	}

	jsonPart, err := extractJSONObject(responseText)
	if err != nil {
		return nil, err
	}

	var outcome models.TurnOutcome
	if err := json.Unmarshal([]byte(jsonPart), &outcome); err != nil {
		return nil, fmt.Errorf("invalid outcome JSON: %w", err)
	}

	if strings.TrimSpace(outcome.Story) == "" {
		return nil, models.ErrEmptyNarration
	}

	return &outcome, nil
}

// extractJSONObject returns the first balanced {...} block in text,
// respecting string literals and escapes.
func extractJSONObject(text string) (string, error) {
	jsonStart := strings.Index(text, "{")
	if jsonStart == -1 {
		return "", errors.New("no JSON object found in response")
	}

	candidate := text[jsonStart:]
	braceLevel := 0
	inString := false
	var prevChar rune
	for i, r := range candidate {
		switch r {
		case '"':
			if prevChar != '\\' {
				inString = !inString
			}
		case '{':
			if !inString {
				braceLevel++
			}
		case '}':
			if !inString {
				braceLevel--
				if braceLevel == 0 {
					return candidate[:i+1], nil
				}
			}
		}
		// A doubled backslash does not escape the quote that follows it.
		if prevChar == '\\' && r == '\\' {
			prevChar = 0
		} else {
			prevChar = r
		}
	}

	return "", errors.New("unbalanced braces in response JSON")
}
