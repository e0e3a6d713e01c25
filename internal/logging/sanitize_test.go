package logging

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain string unchanged", "hello world", "hello world"},
		{"newlines replaced", "line1\nline2", "line1 line2"},
		{"carriage returns replaced", "a\rb", "a b"},
		{"tabs replaced", "a\tb", "a b"},
		{"control chars removed", "a\x00\x1bb", "ab"},
		{"crlf injection", "user\r\n[audit] fake entry", "user  [audit] fake entry"},
		{"empty string", "", ""},
		{"unicode preserved", "héllo wörld", "héllo wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"shorter than limit", "abc", 10, "abc"},
		{"exactly at limit", "abcde", 5, "abcde"},
		{"cut with ellipsis", "abcdefgh", 5, "abcde..."},
		{"zero limit", "abc", 0, ""},
		{"multibyte runes", "héllo wörld", 5, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.n); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  map[string]any
		want string
	}{
		{"nil map", nil, ""},
		{"empty map", map[string]any{}, ""},
		{"single pair", map[string]any{"host": "example.com"}, "host=example.com"},
		{"sorted keys", map[string]any{"port": 22, "host": "h"}, "host=h port=22"},
		{"spaces quoted", map[string]any{"msg": "two words"}, `msg="two words"`},
		{"newline sanitized", map[string]any{"user": "a\nb"}, `user="a b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatContext(tt.ctx); got != tt.want {
				t.Errorf("FormatContext(%v) = %q, want %q", tt.ctx, got, tt.want)
			}
		})
	}
}
