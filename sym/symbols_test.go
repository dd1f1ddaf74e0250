package sym

import "testing"

func TestGlyphsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for glyph := range descriptions {
		if seen[glyph] {
			t.Fatalf("duplicate glyph %q", glyph)
		}
		seen[glyph] = true
		if Describe(glyph) == "" {
			t.Errorf("glyph %q has no description", glyph)
		}
	}
	if Describe("?") != "" {
		t.Error("unknown glyph should have no description")
	}
}
