package atomizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestAtomize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple sentences",
			input: "Call mom tomorrow. Buy groceries after work.",
			want:  []string{"Call mom tomorrow.", "Buy groceries after work."},
		},
		{
			name:  "split without whitespace before capital",
			input: "Hello.Next thing",
			want:  []string{"Hello.", "Next thing"},
		},
		{
			name:  "abbreviation before lowercase does not split",
			input: "meet at 5pm approx.maybe later",
			want:  []string{"meet at 5pm approx.maybe later"},
		},
		{
			name:  "exclamation and question marks",
			input: "Really? Yes! Let's go",
			want:  []string{"Really?", "Yes!", "Let's go"},
		},
		{
			name:  "trailing punctuation at end of string",
			input: "done here.",
			want:  []string{"done here."},
		},
		{
			name:  "short fragments dropped",
			input: "! Something real.",
			want:  []string{"Something real."},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			input: "   \n\t ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Atomize(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Atomize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAtomizePreservesOrder(t *testing.T) {
	got := Atomize("First thought. Second thought. Third thought.")
	want := []string{"First thought.", "Second thought.", "Third thought."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected atoms in input order, got %v", got)
	}
}

func TestScrubPIIEmail(t *testing.T) {
	got := ScrubPII("reach me at a@b.com please")

	if strings.Contains(got, "a@b.com") {
		t.Errorf("Expected literal address removed, got %q", got)
	}
	if !strings.Contains(got, EmailPlaceholder) {
		t.Errorf("Expected %s placeholder, got %q", EmailPlaceholder, got)
	}
}

func TestScrubPIICreditCard(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain 16 digits", "card 4111111111111111 ok"},
		{"grouped with spaces", "card 4111 1111 1111 1111 ok"},
		{"grouped with dashes", "card 4111-1111-1111-1111 ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScrubPII(tt.input)
			if !strings.Contains(got, CreditCardPlaceholder) {
				t.Errorf("Expected %s in %q", CreditCardPlaceholder, got)
			}
			if strings.Contains(got, "4111") {
				t.Errorf("Expected card digits removed, got %q", got)
			}
		})
	}
}

func TestScrubPIISensitiveCode(t *testing.T) {
	got := ScrubPII("my pin is 4821")
	if !strings.Contains(got, SensitiveCodePlaceholder) {
		t.Errorf("Expected %s in %q", SensitiveCodePlaceholder, got)
	}

	// Over-redaction of years is the documented current behavior.
	got = ScrubPII("born in 1990")
	if !strings.Contains(got, SensitiveCodePlaceholder) {
		t.Errorf("Expected 4-digit year redacted (documented behavior), got %q", got)
	}
}

func TestScrubPIIUntouchedText(t *testing.T) {
	input := "call mom about dinner"
	if got := ScrubPII(input); got != input {
		t.Errorf("Expected clean text untouched, got %q", got)
	}

	if got := ScrubPII(""); got != "" {
		t.Errorf("Expected empty input to stay empty, got %q", got)
	}
}

func TestScrubPIIDeterministic(t *testing.T) {
	input := "email a@b.com pin 1234 card 4111111111111111"
	first := ScrubPII(input)
	for i := 0; i < 5; i++ {
		if got := ScrubPII(input); got != first {
			t.Fatalf("ScrubPII not deterministic: %q vs %q", first, got)
		}
	}
}
