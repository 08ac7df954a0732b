package sanitize

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain ascii unchanged", in: "Alice <a@x.com>", want: "Alice <a@x.com>"},
		{name: "unicode text preserved", in: "José Müller 山田", want: "José Müller 山田"},
		{name: "emoji stripped", in: "Alice 🎉", want: "Alice "},
		{name: "only symbols yields empty", in: "🎉🥳✨", want: ""},
		{name: "zwj sequence stripped", in: "\U0001F469‍\U0001F4BBa", want: "a"},
		{name: "variation selector stripped", in: "phone ☎️", want: "phone "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
