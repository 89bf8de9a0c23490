package storage

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		maxLen  int
		want    string
	}{
		{"short stays", "hello", 10, "hello"},
		{"exact stays", "hello", 5, "hello"},
		{"long truncated", "hello world", 5, "hello"},
		{"empty", "", 5, ""},
		{"multibyte not split", "héllo wörld", 6, "héllo "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncatePayload(tt.payload, tt.maxLen)
			if got != tt.want {
				t.Errorf("TruncatePayload(%q, %d) = %q, want %q", tt.payload, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result is not valid UTF-8: %q", got)
			}
		})
	}
}

func TestTruncatePayload_LongDocument(t *testing.T) {
	payload := strings.Repeat("é", PayloadPreviewLength+100)
	got := TruncatePayload(payload, PayloadPreviewLength)
	if n := utf8.RuneCountInString(got); n != PayloadPreviewLength {
		t.Errorf("rune count = %d, want %d", n, PayloadPreviewLength)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte character")
	}
}

func TestHashPayload(t *testing.T) {
	h := HashPayload([]byte("test payload"))
	if len(h) != 64 {
		t.Errorf("hash length = %d, want 64", len(h))
	}
	if h != HashPayload([]byte("test payload")) {
		t.Error("hash is not deterministic")
	}
	if h == HashPayload([]byte("other payload")) {
		t.Error("distinct payloads hashed identically")
	}
}
