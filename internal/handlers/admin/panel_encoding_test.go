package admin

import (
	"regexp"
	"testing"
)

func TestEncodeUint64Min_UsesCallbackSafeCharset(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	for _, value := range []uint64{0, 1, 255, 256, 1 << 40, 1<<64 - 1} {
		encoded := encodeUint64Min(value)
		if !re.MatchString(encoded) {
			t.Fatalf("encoded id %q contains unsupported chars", encoded)
		}
		decoded, err := decodeUint64Min(encoded)
		if err != nil {
			t.Fatalf("decodeUint64Min(%q) failed: %v", encoded, err)
		}
		if decoded != value {
			t.Fatalf("decoded %d, want %d", decoded, value)
		}
	}
}

func TestParsePanelCallbackCandidates(t *testing.T) {
	t.Parallel()

	data := panelCallbackData(12, 3456)
	candidates := parsePanelCallbackCandidates(data)
	found := false
	for _, candidate := range candidates {
		if candidate.SessionID == 12 && candidate.CommandID == 3456 {
			found = true
		}
	}
	if !found {
		t.Fatalf("session 12 / command 3456 not among candidates %v", candidates)
	}
	if len(data) > 64 {
		t.Fatalf("callback data too long: %d", len(data))
	}

	for _, bad := range []string{"", "nounderscore", "vrf:a:token"} {
		if got := parsePanelCallbackCandidates(bad); len(got) != 0 {
			t.Fatalf("unexpected candidates for %q: %v", bad, got)
		}
	}
}
