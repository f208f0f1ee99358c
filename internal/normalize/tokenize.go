package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// token is a word or separator run with byte offsets into its source string.
type token struct {
	text  string
	start int
	end   int
	word  bool
}

// Canonicalize applies NFKC and strips control characters other than
// whitespace. Spans reported by the normalizer index into this form.
func Canonicalize(text string) string {
	s := norm.NFKC.String(text)
	if strings.IndexFunc(s, isStrippedControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, s)
}

func isStrippedControl(r rune) bool {
	return unicode.IsControl(r) && !unicode.IsSpace(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// isJoiner reports runes that join two word runs into one word (e.g. "x'de", "kata-kata").
func isJoiner(r rune) bool {
	return r == '-' || r == '\'' || r == '’'
}

// tokenize splits s into alternating word and separator tokens covering s.
func tokenize(s string) []token {
	var tokens []token
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		start := i
		if isWordRune(r) {
			i += size
			for i < len(s) {
				r, size = utf8.DecodeRuneInString(s[i:])
				if isWordRune(r) {
					i += size
					continue
				}
				if isJoiner(r) && i+size < len(s) {
					next, _ := utf8.DecodeRuneInString(s[i+size:])
					if isWordRune(next) {
						i += size
						continue
					}
				}
				break
			}
			tokens = append(tokens, token{text: s[start:i], start: start, end: i, word: true})
			continue
		}

		i += size
		for i < len(s) {
			r, size = utf8.DecodeRuneInString(s[i:])
			if isWordRune(r) {
				break
			}
			i += size
		}
		tokens = append(tokens, token{text: s[start:i], start: start, end: i})
	}
	return tokens
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == "" && s != ""
}

// Words returns the word tokens of text, lowercased.
func Words(text string) []string {
	var out []string
	for _, t := range tokenize(text) {
		if t.word {
			out = append(out, strings.ToLower(t.text))
		}
	}
	return out
}

// Word is a word token with its position in the text.
type Word struct {
	Text    string
	Span    Span
	Index   int  // ordinal among words
	Segment int  // words sharing a segment are separated only by whitespace
	Final   bool // last word before sentence punctuation or the end of text
}

// Scan canonicalizes text and returns its words with positions.
func Scan(text string) []Word {
	toks := tokenize(Canonicalize(text))
	var words []Word
	segment := 0
	for i, t := range toks {
		if !t.word {
			if len(words) > 0 && !isBlank(t.text) {
				segment++
			}
			continue
		}
		w := Word{
			Text:    t.text,
			Span:    Span{Start: t.start, End: t.end},
			Index:   len(words),
			Segment: segment,
		}
		switch {
		case i+1 >= len(toks):
			w.Final = true
		case !toks[i+1].word && strings.ContainsAny(toks[i+1].text, ".?!"):
			w.Final = true
		case i+2 >= len(toks):
			// trailing separator only
			w.Final = true
		}
		words = append(words, w)
	}
	return words
}

// Forms returns the lowercased lookup forms of a word: as written, then with
// elongated letter runs collapsed to two and to one.
func Forms(word string) []string {
	return lookupForms(word)
}
