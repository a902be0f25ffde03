package drops

import "testing"

func TestMatcherGoldenCases(t *testing.T) {
	cases := []struct {
		guess string
		name  string
		any   bool
		set   bool
	}{
		{guess: "Goku", name: "Son Goku", any: true, set: false},
		{guess: "Son Goku", name: "Son Goku", any: true, set: true},
		{guess: "goku son", name: "Son Goku", any: true, set: true},
		{guess: "  SON   GOKU ", name: "Son Goku", any: true, set: true},
		{guess: "Goku Vegeta", name: "Son Goku", any: true, set: false},
		{guess: "Vegeta", name: "Son Goku", any: false, set: false},
		{guess: "Goku & Vegeta", name: "Son Goku", any: false, set: false},
		{guess: "Son Goku (kid)", name: "Son Goku", any: false, set: false},
		{guess: "", name: "Son Goku", any: false, set: false},
		{guess: "ＧＯＫＵ", name: "Goku", any: true, set: true},
	}

	anyToken := NewMatcher(MatchAnyToken)
	tokenSet := NewMatcher(MatchTokenSet)
	for _, tc := range cases {
		if got := anyToken.Match(tc.guess, tc.name); got != tc.any {
			t.Errorf("any_token: %q против %q: ожидали %v, получили %v", tc.guess, tc.name, tc.any, got)
		}
		if got := tokenSet.Match(tc.guess, tc.name); got != tc.set {
			t.Errorf("token_set: %q против %q: ожидали %v, получили %v", tc.guess, tc.name, tc.set, got)
		}
	}
}

func TestParseMatchMode(t *testing.T) {
	mode, err := ParseMatchMode("")
	if err != nil || mode != MatchAnyToken {
		t.Fatalf("ожидали режим по умолчанию any_token, получили %q, %v", mode, err)
	}
	mode, err = ParseMatchMode(" TOKEN_SET ")
	if err != nil || mode != MatchTokenSet {
		t.Fatalf("ожидали token_set, получили %q, %v", mode, err)
	}
	if _, err := ParseMatchMode("fuzzy"); err == nil {
		t.Fatal("ожидали ошибку для неизвестного режима")
	}
}
