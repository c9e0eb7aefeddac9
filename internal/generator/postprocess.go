package generator

import (
	"regexp"
	"strings"
)

var (
	ellipsisRe     = regexp.MustCompile(`\.\.+`)
	parenPunctRe   = regexp.MustCompile(`\) ([.,;:])`)
	urlHyphenRe    = regexp.MustCompile(`http(.+?) - `)
	numberHyphenRe = regexp.MustCompile(`(\d) - (\d)`)
)

// TrimOutput cuts the text at the first ellipsis run, keeping the dots.
// Models trained on forum text tend to trail off mid-thought; an
// ellipsis is the last coherent stopping point.
func TrimOutput(text string) string {
	loc := ellipsisRe.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[1]]
}

// CorrectOutput fixes the spacing artifacts the tokenizer leaves around
// punctuation, parentheses and URLs, and cuts trailing word repetition.
func CorrectOutput(text string) string {
	text = strings.ReplaceAll(text, "( ", "(")
	text = strings.ReplaceAll(text, " )", ")")
	text = parenPunctRe.ReplaceAllString(text, ")$1")
	text = strings.ReplaceAll(text, " :", ":")
	text = strings.ReplaceAll(text, " ;", ";")
	text = strings.ReplaceAll(text, "/ www", "/www")
	text = strings.ReplaceAll(text, " / ", "/")
	text = urlHyphenRe.ReplaceAllString(text, "http$1-")
	text = strings.ReplaceAll(text, `" `, `"`)
	text = strings.ReplaceAll(text, ` "`, `"`)
	text = strings.TrimPrefix(text, ". ")
	text = numberHyphenRe.ReplaceAllString(text, "$1-$2")
	return cutTrailingRepetition(text)
}

// cutTrailingRepetition drops a run of the same word repeated at the
// end, a common failure mode of small sampling-constrained models.
func cutTrailingRepetition(text string) string {
	words := strings.Fields(text)
	if len(words) < 2 || words[len(words)-1] != words[len(words)-2] {
		return text
	}
	last := words[len(words)-1]
	i := len(words) - 1
	for i > 0 && words[i-1] == last {
		i--
	}
	if i == 0 {
		// The whole text is one repeated word; nothing sensible remains
		// after a cut, so leave it alone.
		return text
	}
	return strings.Join(words[:i], " ")
}
