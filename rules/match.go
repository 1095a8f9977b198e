package rules

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchMode selects how forgiving answer grading is.
type MatchMode int

const (
	// MatchStrict compares normalized strings for equality.
	MatchStrict MatchMode = iota
	// MatchLenient also accepts accent-folded text, listed alternatives, dropped
	// leading articles, acronyms and small typos.
	MatchLenient
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	whitespace = regexp.MustCompile(`\s+`)
	parens     = regexp.MustCompile(`\(([^)]*)\)`)
	articles   = []string{"the ", "a ", "an "}
)

// Normalize lower-cases s, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWord.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// MatchAnswer grades given against the accepted answer.
func MatchAnswer(given, accepted string, mode MatchMode) bool {
	g := Normalize(given)
	if g == "" {
		return false
	}
	if mode == MatchStrict {
		return g == Normalize(accepted)
	}

	g = lenientForm(given)
	for _, candidate := range alternatives(accepted) {
		c := lenientForm(candidate)
		if c == "" {
			continue
		}
		if g == c || stripArticle(g) == stripArticle(c) {
			return true
		}
		if acronym(c) != "" && strings.ReplaceAll(g, " ", "") == acronym(c) {
			return true
		}
		if withinTypoDistance(stripArticle(g), stripArticle(c)) {
			return true
		}
	}
	return false
}

func lenientForm(s string) string {
	s = foldAccents(s)
	s = strings.ReplaceAll(s, "&", " and ")
	return Normalize(s)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// alternatives splits "A / B", "A or B" and "A (B)" forms into candidates.
func alternatives(accepted string) []string {
	candidates := []string{accepted}
	if m := parens.FindAllStringSubmatch(accepted, -1); len(m) > 0 {
		candidates = append(candidates, parens.ReplaceAllString(accepted, ""))
		for _, sub := range m {
			candidates = append(candidates, sub[1])
		}
	}
	var out []string
	for _, c := range candidates {
		for _, part := range strings.Split(c, "/") {
			for _, alt := range strings.Split(part, " or ") {
				if alt = strings.TrimSpace(alt); alt != "" {
					out = append(out, alt)
				}
			}
		}
	}
	return out
}

func stripArticle(s string) string {
	for _, a := range articles {
		if strings.HasPrefix(s, a) {
			return strings.TrimPrefix(s, a)
		}
	}
	return s
}

// acronym returns the initials of a multi-word answer, or "" for single words.
func acronym(s string) string {
	words := strings.Fields(stripArticle(s))
	if len(words) < 2 {
		return ""
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteRune([]rune(w)[0])
	}
	return b.String()
}

func withinTypoDistance(a, b string) bool {
	n := len([]rune(b))
	allowed := 0
	switch {
	case n >= 10:
		allowed = 2
	case n >= 5:
		allowed = 1
	}
	if allowed == 0 {
		return false
	}
	return levenshtein(a, b) <= allowed
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
