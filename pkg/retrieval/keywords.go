package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be but by can do does for from
		has have how i if in into is it its me my not of on or our should so that the
		their them then there these this to was we what when where which while who why
		will with you your`) {
		stopWords[w] = struct{}{}
	}
}

// Keywords extracts search terms from free text: lower-cased, split on
// anything that is not a letter, digit, '-', '_' or '.', stop words and
// single-rune tokens dropped, first occurrence order kept.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.'
	})

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "-_.")
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, ok := stopWords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
