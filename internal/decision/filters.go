package decision

import (
	"fmt"
	"regexp"
)

// Filters removes unwanted phrases from forum and generated text.
// Regex patterns are compiled as configured (case-sensitive unless the
// pattern says otherwise); literal phrases are fully escaped first, so
// "[ Visa mer ]" matches the exact substring and nothing else.
type Filters struct {
	patterns []*regexp.Regexp
}

func NewFilters(regexPhrases, literalPhrases []string) (*Filters, error) {
	f := &Filters{}
	for _, p := range regexPhrases {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad unwanted phrase pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	for _, p := range literalPhrases {
		f.patterns = append(f.patterns, regexp.MustCompile(regexp.QuoteMeta(p)))
	}
	return f, nil
}

// Apply replaces every match with the empty string.
func (f *Filters) Apply(text string) string {
	for _, re := range f.patterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}
