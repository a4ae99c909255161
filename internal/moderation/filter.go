// Package moderation provides content filtering and the admin command
// controller. The filter scrubs profanity from message text before it is
// persisted or delivered; the controller executes delete/clear/ban/report
// commands against the stores and re-broadcasts the effects.
package moderation

import (
	"regexp"
	"strings"
)

// MaskToken replaces every matched profane span.
const MaskToken = "****"

// defaultWords is the fixed profanity list (Latam/Spain/US coverage).
var defaultWords = []string{
	"puta", "puto", "mierda", "verga", "pendejo", "estupido", "idiota", "imbecil",
	"cabron", "marico", "marica", "zorra", "mamaguevo", "coño", "joder", "carajo",
	"fuck", "shit", "bitch", "asshole", "dick", "pussy", "cunt", "bastard",
	"malparido", "gonorrea", "pirobo", "carechimba", "boludo", "pelotudo",
	"conchatumadre", "hijueputa", "gilipollas", "capullo", "mamahuevo",
	"pinga", "culo", "teton", "tetas", "vagina", "pene", "sexo", "porno",
	"xxx", "nopor", "maldito", "maldita", "basura", "kk",
	"qlo", "culero", "pinche", "wey", "weon", "aweonao", "chucha", "vergazos",
}

// charClasses maps letters to tolerant character classes covering accented
// and numeral look-alikes. The 'u' class accepts '4' as well, which shows up
// as a stand-in for both vowels in the wild (p4t4).
var charClasses = map[rune]string{
	'a': "[aá@4]",
	'e': "[eé3]",
	'i': "[ií1]",
	'o': "[oó0]",
	'u': "[uú4]",
	's': "[s5$]",
	't': "[t7]",
	'b': "[b8]",
}

// Filter scrubs profane spans from text. It is stateless after construction
// and safe for concurrent use.
type Filter struct {
	patterns []*regexp.Regexp
}

// NewFilter compiles the default word list into tolerant matchers.
func NewFilter() *Filter {
	return NewFilterWithWords(defaultWords)
}

// NewFilterWithWords compiles a custom word list. Empty or whitespace-only
// entries are skipped. Each word becomes a case-insensitive, whole-word
// pattern that tolerates character repetition (puuuta), look-alike
// substitutions (m1erda) and non-alphanumeric separators (p.u.t.a).
func NewFilterWithWords(words []string) *Filter {
	f := &Filter{patterns: make([]*regexp.Regexp, 0, len(words))}
	for _, w := range words {
		w = strings.TrimSpace(strings.ToLower(w))
		if w == "" {
			continue
		}
		f.patterns = append(f.patterns, regexp.MustCompile(wordPattern(w)))
	}
	return f
}

// wordPattern builds the tolerant regex source for a single word.
func wordPattern(word string) string {
	var b strings.Builder
	b.WriteString(`(?i)\b`)
	runes := []rune(word)
	for i, r := range runes {
		if class, ok := charClasses[r]; ok {
			b.WriteString(class)
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
		b.WriteString("+")
		if i < len(runes)-1 {
			b.WriteString(`\W*`)
		}
	}
	b.WriteString(`\b`)
	return b.String()
}

// Scrub replaces every profane span in text with the mask token. Clean input
// comes back unchanged, so the operation is idempotent.
func (f *Filter) Scrub(text string) string {
	for _, re := range f.patterns {
		text = re.ReplaceAllString(text, MaskToken)
	}
	return text
}
