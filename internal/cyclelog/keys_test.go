package cyclelog

import "testing"

func TestCursorKeyRoundTrip(t *testing.T) {
	for _, g := range []string{"g", "a/b", "x/", "test/consumer/7"} {
		for _, part := range []int{0, 3, 47} {
			group, p, ok := parseCursorKey(keyCursor(g, part))
			if !ok || group != g || p != part {
				t.Fatalf("%q/%d parsed as %q/%d ok=%v", g, part, group, p, ok)
			}
		}
	}
	if _, _, ok := parseCursorKey([]byte("cursor/")); ok {
		t.Fatalf("short key accepted")
	}
	if _, _, ok := parseCursorKey(keyNext(1)); ok {
		t.Fatalf("watermark key parsed as cursor")
	}
}
