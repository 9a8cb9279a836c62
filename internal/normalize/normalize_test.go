package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pace/ingest-service/internal/normalize"
)

func TestURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://x.com/a#frag", "http://x.com/a"},
		{"http://X.COM/a", "http://x.com/a"},
		{"HTTPS://Unstop.com/Hackathons/AI-Fest?ref=Home#top", "https://unstop.com/Hackathons/AI-Fest?ref=Home"},
		{"  https://unstop.com/jobs/x  ", "https://unstop.com/jobs/x"},
		{"https://unstop.com:443/p", "https://unstop.com:443/p"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, normalize.URL(c.in), "URL(%q)", c.in)
	}
}

func TestURL_Idempotent(t *testing.T) {
	inputs := []string{
		"http://x.com/a#frag",
		"HTTP://X.COM/A/b?Q=1#F",
		"https://unstop.com/o/some%20path?x=%2F",
		"https://user@Host.Example/path",
		"not a url at all",
		"/relative/path#x",
	}
	for _, in := range inputs {
		once := normalize.URL(in)
		assert.Equal(t, once, normalize.URL(once), "normalize twice %q", in)
	}
}

func TestURL_KeepsPathCase(t *testing.T) {
	assert.Equal(t, "https://x.com/CaseSensitive", normalize.URL("https://X.com/CaseSensitive"))
}

func TestID_Stable(t *testing.T) {
	a := normalize.ID("http://x.com/a#frag")
	b := normalize.ID("http://X.COM/a")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, a, normalize.ID("http://x.com/a"))
}

func TestID_DifferentLinks(t *testing.T) {
	assert.NotEqual(t, normalize.ID("http://x.com/a"), normalize.ID("http://x.com/b"))
}

func TestID_Empty(t *testing.T) {
	assert.Empty(t, normalize.ID(""))
	assert.Empty(t, normalize.ID("   "))
}
