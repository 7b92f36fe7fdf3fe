package textutil

import "testing"

func TestCleanText(t *testing.T) {
	cases := map[string]struct {
		in   string
		max  int
		want string
	}{
		"markup stripped":   {in: "<b>Jane</b> <script>alert(1)</script>Doe", want: "Jane Doe"},
		"whitespace":        {in: "  12   Main\tStreet \n", want: "12 Main Street"},
		"full width folded": {in: "Ｔｏｋｙｏ　１２３", want: "Tokyo 123"},
		"apostrophe kept":   {in: "O'Brien", want: "O'Brien"},
		"truncated":         {in: "abcdef", max: 3, want: "abc"},
		"empty":             {in: "", want: ""},
	}
	for name, tc := range cases {
		if got := CleanText(tc.in, tc.max); got != tc.want {
			t.Fatalf("%s: CleanText(%q) = %q, want %q", name, tc.in, got, tc.want)
		}
	}
}

func TestCleanContactFields(t *testing.T) {
	if got := CleanEmail("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Fatalf("unexpected email %q", got)
	}
	if got := CleanPhone("+1 (555) 010-9999"); got != "+15550109999" {
		t.Fatalf("unexpected phone %q", got)
	}
	if got := CleanPhone("０９０-１２３４"); got != "0901234" {
		t.Fatalf("unexpected full-width phone %q", got)
	}
	if got := CountryCode(" us "); got != "US" {
		t.Fatalf("unexpected country %q", got)
	}
}
