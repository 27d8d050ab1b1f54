package services

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify derives the URL slug of a title: diacritics are folded to ASCII,
// letters lowercased, whitespace and hyphens become single hyphens, and
// every other character is dropped. Leading and trailing hyphens are trimmed.
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}
	return b.String()
}

const excerptLength = 200

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Excerpt builds a plain-text summary of HTML content: tags stripped,
// entities decoded, whitespace collapsed, cut to 200 characters.
func Excerpt(content string) string {
	plain := html.UnescapeString(htmlTag.ReplaceAllString(content, " "))
	plain = strings.Join(strings.Fields(plain), " ")

	r := []rune(plain)
	if len(r) <= excerptLength {
		return plain
	}
	return strings.TrimSpace(string(r[:excerptLength])) + "..."
}

// tagSeparator joins folded tags in the search column. It is stripped from
// search terms, so a match never spans two tags.
const tagSeparator = "\n"

// searchFold is the form both stored text and search terms are compared in.
// The database only folds ASCII case, so folding happens here.
func searchFold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

func searchTags(tags []string) string {
	folded := make([]string, len(tags))
	for i, t := range tags {
		folded[i] = searchFold(t)
	}
	return strings.Join(folded, tagSeparator)
}

// searchTerm folds a user search and drops control characters.
func searchTerm(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, searchFold(s)))
}
