package sanitize

import "testing"

func TestPathComponent(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", false},
		{"..", "", false},
		{"a/b", "", false},
		{"a\\b", "", false},
		{"a\x00b", "", false},
		{"hello", "hello", true},
	}
	for _, c := range cases {
		got, ok := PathComponent(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("PathComponent(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestFilenameStrict(t *testing.T) {
	cases := map[string]string{
		"report.pdf":      "report.pdf",
		"../../etc/passwd": "_.._etc_passwd",
		"..hidden":         "hidden",
		"":                 "attachment",
		"...":              "attachment",
		"a  b":             "a_b",
		"naïve.txt":        "na_ve.txt",
	}
	for in, want := range cases {
		got := FilenameStrict(in)
		if got != want {
			t.Errorf("FilenameStrict(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmailRedaction(t *testing.T) {
	if got := Email("alice@example.com"); got != "***@example.com" {
		t.Errorf("got %q", got)
	}
	if got := Email("not-an-address"); got != "***" {
		t.Errorf("got %q", got)
	}
}

func TestSubjectRedaction(t *testing.T) {
	got := Subject("Quarterly results attached")
	if got != "Qua...[26 chars]" {
		t.Errorf("got %q", got)
	}
	got = Subject("Hi")
	if got != "...[2 chars]" {
		t.Errorf("got %q", got)
	}
}