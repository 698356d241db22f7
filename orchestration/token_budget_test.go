package orchestration

import (
	"testing"
	"unicode/utf8"
)

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}
	if c.Count("") != 0 {
		t.Error("empty text should cost nothing")
	}
	if c.Count("abcd") != 1 || c.Count("abcde") != 2 {
		t.Errorf("Count = %d / %d", c.Count("abcd"), c.Count("abcde"))
	}
	text := "héllo wörld"
	if got, want := c.Count(text), (utf8.RuneCountInString(text)+3)/4; got != want {
		t.Errorf("Count(%q) = %d, want %d", text, got, want)
	}
}

func TestTiktokenCounter_FallsBack(t *testing.T) {
	c := &TiktokenCounter{}
	if !c.Approximate() {
		t.Error("counter without encoder should be approximate")
	}
	if got := c.Count("SELECT 1 FROM complaints"); got != (HeuristicCounter{}).Count("SELECT 1 FROM complaints") {
		t.Errorf("fallback count = %d", got)
	}
}
