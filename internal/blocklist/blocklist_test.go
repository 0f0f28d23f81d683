package blocklist

import "testing"

func TestBlocked(t *testing.T) {
	l := New([]string{"youtube.com", "facebook.com", "", "  "})

	cases := []struct {
		link string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"https://m.facebook.com/page", true},
		{"https://example.com/article", false},
		{"https://example.com/youtube.com-review", true}, // substring match is intentional
		{"", true},
		{"   ", true},
	}
	for _, c := range cases {
		if got := l.Blocked(c.link); got != c.want {
			t.Fatalf("Blocked(%q) = %v, want %v", c.link, got, c.want)
		}
	}
}

func TestBlocked_CaseInsensitive(t *testing.T) {
	l := New([]string{"YouTube.com"})
	if !l.Blocked("https://WWW.YOUTUBE.COM/x") {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestBlocked_EmptyListAllowsEverythingWithALink(t *testing.T) {
	l := New(nil)
	if l.Blocked("https://example.com") {
		t.Fatalf("empty list should not block a valid link")
	}
	if !l.Blocked("") {
		t.Fatalf("missing link must always be rejected")
	}
}
