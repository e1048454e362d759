package nlp

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// Abbreviations expanded before any pattern matching runs. Expansion happens
// on the lowercased text, longest keys first so "w/o" wins over "w/".
var abbreviations = []struct{ abbr, full string }{
	{"asap", "as soon as possible"},
	{"wrt", "with respect to"},
	{"w/o", "without"},
	{"w/", "with"},
	{"tmrw", "tomorrow"},
	{"tdy", "today"},
	{"eod", "end of day"},
	{"cob", "close of business"},
	{"pls", "please"},
	{"fyi", "for your information"},
}

// Normalize lowercases and expands abbreviations for intent and keyword
// detection. Pattern matching on case-sensitive shapes (issue keys, file
// names) runs against the original text instead.
func Normalize(text string) string {
	text = strings.ToLower(text)
	for _, a := range abbreviations {
		text = strings.ReplaceAll(text, a.abbr, a.full)
	}
	return text
}

type taggedToken struct {
	Text string
	Tag  string
}

// tagTokens tokenizes and part-of-speech tags the normalized text. When the
// tagger cannot run, every whitespace token is defaulted to "NN" so the
// noun-phrase heuristics downstream still operate.
func tagTokens(text string) []taggedToken {
	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithSegmentation(false))
	if err == nil {
		toks := doc.Tokens()
		out := make([]taggedToken, 0, len(toks))
		for _, t := range toks {
			out = append(out, taggedToken{Text: t.Text, Tag: t.Tag})
		}
		if len(out) > 0 { return out }
	}
	fields := strings.Fields(text)
	out := make([]taggedToken, 0, len(fields))
	for _, f := range fields {
		out = append(out, taggedToken{Text: f, Tag: "NN"})
	}
	return out
}

// longestNounPhrase returns the longest contiguous run of noun-tagged tokens,
// joined by spaces, or "" when the text holds no nouns.
func longestNounPhrase(tokens []taggedToken) string {
	var best, cur []string
	flush := func() {
		if len(strings.Join(cur, " ")) > len(strings.Join(best, " ")) {
			best = append([]string(nil), cur...)
		}
		cur = cur[:0]
	}
	for _, t := range tokens {
		if strings.HasPrefix(t.Tag, "NN") {
			cur = append(cur, t.Text)
			continue
		}
		flush()
	}
	flush()
	return strings.Join(best, " ")
}

func hasToken(tokens []taggedToken, words ...string) bool {
	for _, t := range tokens {
		for _, w := range words {
			if t.Text == w { return true }
		}
	}
	return false
}
