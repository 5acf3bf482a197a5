package dist

import "testing"

func TestTokenizer(t *testing.T) {
	text := ",,ab, c\n\nd,"
	tok := NewTokenizer(text, ", \n")
	expected := []struct {
		token string
		span  Span
	}{
		{"ab", Span{Start: 2, End: 4}},
		{"c", Span{Start: 6, End: 7}},
		{"d", Span{Start: 9, End: 10}},
	}
	for pass := 0; pass < 2; pass++ {
		for i, x := range expected {
			if !tok.Next() {
				t.Fatalf("pass %d: ran out of tokens at %d", pass, i)
			}
			if tok.Token() != x.token || tok.Span() != x.span {
				t.Errorf("pass %d token %d: expected %q at %v but got %q at %v",
					pass, i, x.token, x.span, tok.Token(), tok.Span())
			}
		}
		if tok.Next() {
			t.Errorf("pass %d: unexpected extra token %q", pass, tok.Token())
		}
		tok.Reset()
	}
}

func TestTokens(t *testing.T) {
	cases := map[string][]string{
		"":            nil,
		",,,":         nil,
		"abc":         {"abc"},
		"1,2\n3,,4\n": {"1", "2", "3", "4"},
	}
	for text, expected := range cases {
		actual := Tokens(text, ",\n")
		if len(actual) != len(expected) {
			t.Errorf("%q: expected %q but got %q", text, expected, actual)
			continue
		}
		for i, x := range expected {
			if actual[i] != x {
				t.Errorf("%q: expected %q but got %q", text, expected, actual)
				break
			}
		}
	}
}
