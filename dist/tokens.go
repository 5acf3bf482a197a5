package dist

import "strings"

// A Span is the byte range [Start, End) of a token.
type Span struct {
	Start int
	End   int
}

// A Tokenizer splits text into tokens separated by any of
// a set of delimiter bytes.
//
// Runs of delimiters produce no empty tokens.
// Tokens are produced lazily, as with a bufio.Scanner.
type Tokenizer struct {
	text   string
	delims string
	pos    int
	span   Span
}

// NewTokenizer creates a Tokenizer for the text.
func NewTokenizer(text, delims string) *Tokenizer {
	return &Tokenizer{text: text, delims: delims}
}

// Next advances to the next token.
// It returns false once the text is exhausted.
func (t *Tokenizer) Next() bool {
	for t.pos < len(t.text) && t.isDelim(t.text[t.pos]) {
		t.pos++
	}
	if t.pos == len(t.text) {
		return false
	}
	start := t.pos
	for t.pos < len(t.text) && !t.isDelim(t.text[t.pos]) {
		t.pos++
	}
	t.span = Span{Start: start, End: t.pos}
	return true
}

// Token gets the current token.
func (t *Tokenizer) Token() string {
	return t.text[t.span.Start:t.span.End]
}

// Span gets the position of the current token.
func (t *Tokenizer) Span() Span {
	return t.span
}

// Reset restarts tokenization from the beginning.
func (t *Tokenizer) Reset() {
	t.pos = 0
	t.span = Span{}
}

func (t *Tokenizer) isDelim(b byte) bool {
	return strings.IndexByte(t.delims, b) >= 0
}

// Tokens splits text into all of its tokens.
func Tokens(text, delims string) []string {
	var res []string
	t := NewTokenizer(text, delims)
	for t.Next() {
		res = append(res, t.Token())
	}
	return res
}
