// Package extract decodes a JSON object embedded in free-form text, such as
// a language model response wrapped in prose or a markdown code fence.
package extract

import (
	"encoding/json"
	"fmt"

	"github.com/starford/scanvault/internal/apperr"
)

// Validator is implemented by decoded types that check their own shape.
type Validator interface {
	Validate() error
}

// Decode locates the first balanced top-level JSON object in text and
// decodes it into T. It returns the value and the exact substring decoded.
// Every failure wraps apperr.ErrInvalidJSON.
func Decode[T any](text string) (T, string, error) {
	var result T

	raw, err := Candidate(text)
	if err != nil {
		return result, "", err
	}

	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, "", fmt.Errorf("extract: %w: %v", apperr.ErrInvalidJSON, err)
	}

	if v, ok := any(&result).(Validator); ok {
		if err := v.Validate(); err != nil {
			return result, "", fmt.Errorf("extract: %w: %v", apperr.ErrInvalidJSON, err)
		}
	}

	return result, raw, nil
}

// Candidate returns the substring from the first '{' to its matching '}'.
// Braces inside string literals do not count toward nesting.
func Candidate(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	if start < 0 {
		return "", fmt.Errorf("extract: %w: no object found", apperr.ErrInvalidJSON)
	}
	return "", fmt.Errorf("extract: %w: unbalanced braces", apperr.ErrInvalidJSON)
}
