package textproc

import (
	"regexp"
	"strings"
)

// wordCorrections maps normalized (lower-cased) tokens to canonical
// technical terms. These are common Spanish mishearings of programming
// vocabulary as produced by speech-to-text.
var wordCorrections = map[string]string{
	"trinme": "README",
	"trime":  "README",
	"ridmi":  "README",
	"redmi":  "README",

	"guitjab":  "GitHub",
	"guit":     "git",
	"comit":    "commit",
	"pul":      "pull",
	"puch":     "push",
	"bransh":   "branch",

	"faison": "Python",
	"paiton": "Python",
	"piton":  "Python",
	"yasón":  "JSON",
	"yeison": "JSON",
	"api":    "API",

	"pac-age":       "package",
	"packash":       "package",
	"packash.yasón": "package.json",
	"packash.json":  "package.json",
	"requaierments": "requirements",
	"requeriments":  "requirements",
	"requairements": "requirements",

	"riact":    "React",
	"riac":     "React",
	"angiular": "Angular",
	"viu":      "Vue",
	"diango":   "Django",

	"enpiem": "npm",
	"pib":    "pip",
	"instal": "install",
	"instol": "install",

	"escuel":    "SQL",
	"posgrés":   "PostgreSQL",
	"postgre":   "PostgreSQL",
	"mongodivi": "MongoDB",

	"dita":   "data",
	"deita":  "data",
	"sérver": "server",
	"claud":  "cloud",
	"claund": "cloud",
	"douker": "Docker",
	"doker":  "Docker",
}

type contextualRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// contextualRules rewrite multi-word mishearings that need surrounding
// context to resolve. They run before the word-level pass.
var contextualRules = []contextualRule{
	{regexp.MustCompile(`(?i)\b(actualizar|update|cambiar|change)\s+(el\s+)?(trinme|trime|ridmi|redmi)\b`), "$1 ${2}README"},
	{regexp.MustCompile(`(?i)\b(archivo|file)\s+(trinme|trime|ridmi|redmi)\b`), "$1 README"},
	{regexp.MustCompile(`(?i)\b(hacer|make|create)\s+(un\s+)?(comit|commit)\b`), "$1 ${2}commit"},
	{regexp.MustCompile(`(?i)\b(subir|upload|push)\s+(a\s+)?(git jab|guitjab)\b`), "$1 ${2}GitHub"},
	{regexp.MustCompile(`(?i)\b(enpiem|en pi eme)\s+(instal|instol)\b`), "npm install"},
	{regexp.MustCompile(`(?i)\b(pib|pip)\s+(instal|instol)\b`), "pip install"},
	{regexp.MustCompile(`(?i)\bpackash\.(yasón|yeison|json)\b`), "package.json"},
	{regexp.MustCompile(`(?i)\b(\w+)\.(yasón|yeison)\b`), "$1.json"},
	{regexp.MustCompile(`(?i)\b(\w+)\.pi\b`), "$1.py"},
	{regexp.MustCompile(`(?i)\b(\w+)\.yei ese\b`), "$1.js"},
	{regexp.MustCompile(`(?i)\brequaierments\.txt\b`), "requirements.txt"},
	{regexp.MustCompile(`(?i)\bgit jab\b`), "GitHub"},
	{regexp.MustCompile(`(?i)\b(noud|nod) modules\b`), "node_modules"},
	{regexp.MustCompile(`(?i)\ben pi eme\b`), "npm"},
	{regexp.MustCompile(`(?i)\bes cu ele\b`), "SQL"},
	{regexp.MustCompile(`(?i)\beich ti eme ele\b`), "HTML"},
	{regexp.MustCompile(`(?i)\bce ese ese\b`), "CSS"},
	{regexp.MustCompile(`(?i)\bmongo divi\b`), "MongoDB"},
}

var (
	multiSpaceRE       = regexp.MustCompile(`\s+`)
	spaceBeforePunctRE = regexp.MustCompile(`\s+([.,;!?])`)
)

// TermCorrector is a deterministic, order-sensitive rewriter for technical
// vocabulary mis-transcriptions. Correct is pure and total: every input maps
// to exactly one output and correcting twice changes nothing.
type TermCorrector struct {
	words map[string]string
	rules []contextualRule
}

func NewTermCorrector() *TermCorrector {
	return &TermCorrector{words: wordCorrections, rules: contextualRules}
}

// AddTerm registers a custom word-level correction.
func (c *TermCorrector) AddTerm(misheard, canonical string) {
	if c.words == nil {
		c.words = map[string]string{}
	}
	c.words[strings.ToLower(misheard)] = canonical
}

func (c *TermCorrector) Correct(text string) string {
	if text == "" {
		return text
	}

	out := text
	for _, rule := range c.rules {
		out = rule.pattern.ReplaceAllString(out, rule.replacement)
	}

	words := strings.Fields(out)
	corrected := make([]string, 0, len(words))
	for _, word := range words {
		suffix := ""
		clean := word
		if last := word[len(word)-1]; last < 0x80 && !isAlnum(rune(last)) {
			suffix = word[len(word)-1:]
			clean = word[:len(word)-1]
		}
		if canonical, ok := c.words[strings.ToLower(clean)]; ok {
			corrected = append(corrected, canonical+suffix)
		} else {
			corrected = append(corrected, word)
		}
	}

	result := strings.Join(corrected, " ")
	result = multiSpaceRE.ReplaceAllString(result, " ")
	result = spaceBeforePunctRE.ReplaceAllString(result, "$1")
	return result
}

func isAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
