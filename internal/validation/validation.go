package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrQueryEmpty is returned when the query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("query is required")

// ErrQueryTooLong is returned when the query exceeds the maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when the query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// MaxQueryLen bounds station search queries in runes. The longest subway
// station names are well under this.
const MaxQueryLen = 64

// StationQuery trims the input, enforces the length bound, and restricts it
// to characters that occur in subway station names and stop ids: letters,
// digits, space, comma, hyphen, slash, period, apostrophe and parentheses.
// Returns the trimmed string or an error suitable for a 400 response.
// Case folding is left to the search index.
func StationQuery(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrQueryEmpty
	}
	if len(r) > MaxQueryLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isStationQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isStationQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '/', '.', '\'', '(', ')':
		return true
	}
	return false
}
