package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimOutput(t *testing.T) {
	assert.Equal(t, "Jag tror det..", TrimOutput("Jag tror det.. och sen kanske"))
	assert.Equal(t, "complete sentence.", TrimOutput("complete sentence."))
	assert.Equal(t, "", TrimOutput(""))
}

func TestCorrectOutput(t *testing.T) {
	cases := map[string]string{
		"se ( kanske ) .":         "se (kanske).",
		"mellan 10 - 20 kronor":   "mellan 10-20 kronor",
		"http://example.com - /x": "http://example.com-/x",
		". Det stammer":           "Det stammer",
		"bra bra bra":             "bra bra bra",
		"det var bra bra":         "det var",
		"helt vanlig text":        "helt vanlig text",
	}
	for in, want := range cases {
		assert.Equal(t, want, CorrectOutput(in), "input %q", in)
	}
}

func TestStripSpecialTokens(t *testing.T) {
	tokens := []string{"[USER]", "[POST_START]", "[POST_END]"}
	got := StripSpecialTokens("[POST_START] hej dar [POST_END]", tokens)
	assert.Equal(t, "hej dar", got)
}
