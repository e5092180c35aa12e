package text

import "testing"

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Иван 🚴 Петров", "Иван Петров"},
		{"  Anna-Maria  ", "Anna-Maria"},
		{"🔥🔥🔥", ""},
		{"O'Neil​ Jr.", "O'Neil Jr"},
		{"john_doe", "john doe"},
		{"--Zoe", "Zoe"},
	}
	for _, tt := range tests {
		if got := CleanName(tt.in); got != tt.want {
			t.Errorf("CleanName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	t.Parallel()

	if got := DisplayName(1, "rider", "💥", ""); got != "@rider" {
		t.Fatalf("expected username fallback, got %q", got)
	}
	if got := DisplayName(42, "", "", ""); got != "id42" {
		t.Fatalf("expected id fallback, got %q", got)
	}
	if got := Mention(1, "", "Anna", "K"); got != "Anna K" {
		t.Fatalf("unexpected mention: %q", got)
	}
	if got := Mention(1, "anna", "Anna", "K"); got != "@anna" {
		t.Fatalf("unexpected mention: %q", got)
	}
}
