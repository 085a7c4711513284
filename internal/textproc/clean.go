package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Deterministic text fallbacks. These are the guaranteed baseline used when
// no enhancement model is loaded or when a model candidate is rejected.

var fillerRE = regexp.MustCompile(`(?i)\b(este|eh|mmm|um|uhm|ah|oh|bueno)\b`)

var duplicatePairREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthe\s+the\b`),
	regexp.MustCompile(`(?i)\ba\s+a\b`),
	regexp.MustCompile(`(?i)\bis\s+is\b`),
}

// Clean strips Spanish filler words and normalizes the sentence shape:
// lower-cased body, capitalized first letter, terminal punctuation. It never
// fails; the worst case is returning the input reshaped.
func Clean(text string) string {
	cleaned := strings.ToLower(text)
	cleaned = fillerRE.ReplaceAllString(cleaned, " ")
	cleaned = multiSpaceRE.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	return finishSentence(cleaned)
}

// Enhance applies rule-based cleanup to a raw machine translation:
// duplicated-word fixes, capitalization, terminal punctuation.
func Enhance(translation string) string {
	enhanced := translation
	for _, re := range duplicatePairREs {
		enhanced = re.ReplaceAllStringFunc(enhanced, func(m string) string {
			return strings.Fields(m)[0]
		})
	}
	enhanced = strings.TrimSpace(enhanced)
	return finishSentence(enhanced)
}

func finishSentence(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	if !strings.ContainsRune(".!?", rune(s[len(s)-1])) {
		s += "."
	}
	return s
}
