package ort

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestGoToCstring(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"simple ascii", "hello"},
		{"with spaces", "hello world"},
		{"with special chars", "hello\tworld\n"},
		{"unicode", "Hello, 世界"},
		{"long string", strings.Repeat("a", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bytes, ptr := GoToCstring(tt.input)

			if len(bytes) != len(tt.input)+1 {
				t.Errorf("expected byte slice length %d, got %d", len(tt.input)+1, len(bytes))
			}
			if bytes[len(bytes)-1] != 0 {
				t.Error("expected null terminator at end of byte slice")
			}
			if ptr == 0 {
				t.Error("expected non-null pointer")
			}
			if string(bytes[:len(bytes)-1]) != tt.input {
				t.Errorf("expected content %q, got %q", tt.input, string(bytes[:len(bytes)-1]))
			}
		})
	}
}

func TestCstringToGoRoundTrip(t *testing.T) {
	tests := []string{
		"",
		"a",
		"hello world",
		"Hello, 世界",
		strings.Repeat("x", 1000),
		"embedded\x00null", // truncated at the first null
	}

	for _, original := range tests {
		t.Run(original, func(t *testing.T) {
			expected := original
			if idx := strings.IndexByte(original, 0); idx >= 0 {
				expected = original[:idx]
			}

			bytes, ptr := GoToCstring(original)
			result := CstringToGo(ptr)
			_ = bytes // Keep alive

			if result != expected {
				t.Errorf("round trip failed: expected %q, got %q", expected, result)
			}
			if !utf8.ValidString(result) {
				t.Error("result is not valid UTF-8")
			}
		})
	}
}

func TestCstringToGoNullPointer(t *testing.T) {
	if result := CstringToGo(0); result != "" {
		t.Errorf("expected empty string for null pointer, got %q", result)
	}
}

func TestCstringToGoInvalidLowAddresses(t *testing.T) {
	for _, ptr := range []uintptr{1, 100, 1000, 4095} {
		if result := CstringToGo(ptr); result != "" {
			t.Errorf("expected empty string for invalid low address %d, got %q", ptr, result)
		}
	}
}

func BenchmarkGoToCstring(b *testing.B) {
	input := strings.Repeat("a", 100)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bytes, _ := GoToCstring(input)
		_ = bytes
	}
}

func BenchmarkCstringToGo(b *testing.B) {
	bytes, ptr := GoToCstring(strings.Repeat("a", 100))
	_ = bytes // Keep alive
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CstringToGo(ptr)
	}
}
