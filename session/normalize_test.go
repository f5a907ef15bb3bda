package session

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"dog", "dog"},
		{"Dog", "dog"},
		{"  DOG!  ", "dog"},
		{"Café", "caf"},
		{"mother-in-law", "motherinlaw"},
		{"route 66", "route66"},
		{"", ""},
		{"!!!", ""},
	}

	for _, c := range cases {
		if got := Normalize(c.raw); got != c.want {
			t.Fatalf("Normalize(%q) = %q, expected %q", c.raw, got, c.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, raw := range []string{"Dog", "mother-in-law", "Café!", "route 66"} {
		once := Normalize(raw)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize(%q) not idempotent: %q then %q", raw, once, twice)
		}
	}
}
