package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renewkit/renewkit/pkg/sanitizer"
)

func TestTrim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"surrounding whitespace", "  MONTHLY_PLAN  ", "MONTHLY_PLAN"},
		{"tabs and newlines", "\t\nuser@example.com\r\n", "user@example.com"},
		{"no whitespace", "annual", "annual"},
		{"only whitespace", "   \t  ", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizer.Trim(tt.input))
		})
	}
}

func TestCaseConversion(t *testing.T) {
	t.Parallel()

	t.Run("ToLower", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "user@example.com", sanitizer.ToLower("User@Example.COM"))
	})

	t.Run("ToUpper", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "NGN", sanitizer.ToUpper("ngn"))
	})

	t.Run("TrimToLower", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "user@example.com", sanitizer.TrimToLower("  User@Example.COM  "))
	})

	t.Run("TrimToUpper", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "MONTHLY_PLAN", sanitizer.TrimToUpper("  monthly_plan  "))
	})
}

func TestMaxLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"shorter than limit", "ref_123", 64, "ref_123"},
		{"exactly at limit", "abcde", 5, "abcde"},
		{"truncated", "abcdefgh", 5, "abcde"},
		{"multibyte runes preserved", "héllo wörld", 5, "héllo"},
		{"zero limit", "anything", 0, ""},
		{"negative limit", "anything", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizer.MaxLength(tt.input, tt.maxLen))
		})
	}
}

func TestRemoveExtraWhitespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"internal runs collapsed", "payment   failed   twice", "payment failed twice"},
		{"mixed whitespace", "a\t\tb\n\nc", "a b c"},
		{"already normalized", "a b c", "a b c"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizer.RemoveExtraWhitespace(tt.input))
		})
	}
}

func TestRemoveControlChars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"null byte stripped", "ref\x00_123", "ref_123"},
		{"escape sequence stripped", "plan\x1b[31mid", "plan[31mid"},
		{"newline and tab kept", "line1\n\tline2", "line1\n\tline2"},
		{"carriage return kept", "a\r\nb", "a\r\nb"},
		{"clean input untouched", "MONTHLY_PLAN", "MONTHLY_PLAN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizer.RemoveControlChars(tt.input))
		})
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tags removed", "<em>monthly_plan</em>", "monthly_plan"},
		{"script tag removed", "<script>alert(1)</script>plan", "alert(1)plan"},
		{"entities unescaped", "Tom &amp; Jerry", "Tom & Jerry"},
		{"self closing tag", "before<br/>after", "beforeafter"},
		{"no markup", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizer.StripHTML(tt.input))
		})
	}
}

func TestSingleLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Insufficient funds on card",
		sanitizer.SingleLine("Insufficient funds\r\non   card"))
	assert.Equal(t, "", sanitizer.SingleLine("\n\r\n"))
}
