package textfilter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Words softened when the audience rating asks for it, with their
// replacements.
var softenedWords = map[string]string{
	"fuck":         "fudge",
	"shit":         "shoot",
	"damn":         "dang",
	"hell":         "heck",
	"ass":          "butt",
	"bitch":        "jerk",
	"bastard":      "jerk",
	"crap":         "crud",
	"piss":         "ticked",
	"motherfucker": "mother-trucker",
	"goddamn":      "gosh-dang",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"dipshit":      "dummy",
	"shithead":     "jerk",
	"dickhead":     "jerk",
	"prick":        "jerk",
	"douchebag":    "jerk",
}

var (
	speechTag   = regexp.MustCompile(`(?s)<speech>(.*?)</speech>`)
	otherTags   = regexp.MustCompile(`(?s)<(instructions|next_state)>.*?</(instructions|next_state)>`)
	markupTag   = regexp.MustCompile(`</?[a-z_]+>`)
	stageNote   = regexp.MustCompile(`\[[^\]]*\]`)
	emphasis    = regexp.MustCompile("[*_#`]+")
	runOfSpaces = regexp.MustCompile(`\s+`)
)

// NarrationFilter prepares model output to be read aloud and written to
// the transcript.
type NarrationFilter struct {
	soften  bool
	regexes map[string]*regexp.Regexp
}

// NewNarrationFilter creates a filter for the given audience rating.
// Ratings of PG-13 and below also soften profanity.
func NewNarrationFilter(rating string) *NarrationFilter {
	f := &NarrationFilter{soften: ShouldFilterContent(rating)}
	if f.soften {
		f.regexes = make(map[string]*regexp.Regexp, len(softenedWords))
		for word := range softenedWords {
			f.regexes[word] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		}
	}
	return f
}

// Clean returns the speakable part of a narrator reply. When the reply
// marks speech with <speech> tags only those segments are kept, joined in
// order. Stage notes in brackets and markdown emphasis are dropped.
func (f *NarrationFilter) Clean(text string) string {
	text = ExtractSpeech(text)
	text = stageNote.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "")
	text = strings.TrimSpace(runOfSpaces.ReplaceAllString(text, " "))
	if f.soften {
		text = f.softenProfanity(text)
	}
	return text
}

// ExtractSpeech joins the <speech> segments of text. Text without speech
// segments is returned with any other markup removed.
func ExtractSpeech(text string) string {
	var segments []string
	for _, m := range speechTag.FindAllStringSubmatch(text, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) > 0 {
		return strings.Join(segments, " ")
	}
	text = otherTags.ReplaceAllString(text, "")
	return strings.TrimSpace(markupTag.ReplaceAllString(text, ""))
}

func (f *NarrationFilter) softenProfanity(text string) string {
	for word, re := range f.regexes {
		replacement := softenedWords[word]
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			return preserveCase(match, replacement)
		})
	}
	return text
}

// ContainsProfanity reports whether text contains any softened word.
func (f *NarrationFilter) ContainsProfanity(text string) bool {
	for _, re := range f.regexes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// preserveCase applies the case pattern of original to replacement.
func preserveCase(original, replacement string) string {
	switch {
	case original == "":
		return replacement
	case strings.ToUpper(original) == original:
		return strings.ToUpper(replacement)
	case strings.ToLower(original) == original:
		return strings.ToLower(replacement)
	}

	title := cases.Title(language.English)
	if title.String(strings.ToLower(original)) == original {
		return title.String(replacement)
	}

	orig := []rune(original)
	out := []rune(replacement)
	for i, r := range out {
		if i < len(orig) && unicode.IsUpper(orig[i]) {
			out[i] = unicode.ToUpper(r)
		} else {
			out[i] = unicode.ToLower(r)
		}
	}
	return string(out)
}

// ShouldFilterContent determines if content should be filtered based on rating
func ShouldFilterContent(rating string) bool {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G", "PG", "PG13", "PG-13":
		return true
	default:
		return false
	}
}
