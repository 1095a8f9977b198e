package rules

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// GenerateCode draws a session code from CodeAlphabet. intn returns a value in [0, n).
func GenerateCode(intn func(n int) int) string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[intn(len(CodeAlphabet))])
	}
	return b.String()
}

// FallbackCode derives a code from a fresh uuid when random draws keep colliding.
func FallbackCode() string {
	id := uuid.New()
	var b strings.Builder
	for _, c := range id[:CodeLength] {
		b.WriteByte(CodeAlphabet[int(c)%len(CodeAlphabet)])
	}
	return b.String()
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode reports whether code is exactly four upper-case letters.
func ValidateCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// ValidateDisplayName accepts 1 to 20 letters, digits or spaces after trimming.
func ValidateDisplayName(name string) bool {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxDisplayNameLen {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' {
			return false
		}
	}
	return true
}
