package cmd

import "testing"

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"notes.md", "text/markdown"},
		{"README.MARKDOWN", "text/markdown"},
		{"index.html", "text/html"},
		{"payload.json", "application/json"},
		{"report.txt", "text/plain"},
		{"no-extension", "text/plain"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.path); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one" {
		t.Errorf("firstLine = %q", got)
	}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	if got := firstLine(string(long)); len(got) != 163 {
		t.Errorf("truncated length = %d, want 163", len(got))
	}
	if got := firstLine("short"); got != "short" {
		t.Errorf("firstLine = %q", got)
	}
}
