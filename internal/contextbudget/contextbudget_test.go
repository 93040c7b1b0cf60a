package contextbudget

import "testing"

func TestThresholdLiterals(t *testing.T) {
	cases := []struct {
		model   string
		percent int
		want    int
	}{
		{"claude-sonnet-4-6", 75, 150_000},
		{"claude-opus-4-6", 50, 100_000},
		{"unknown", 80, 160_000},
	}
	for _, c := range cases {
		if got := Threshold(c.model, c.percent); got != c.want {
			t.Errorf("Threshold(%q, %d) = %d, want %d", c.model, c.percent, got, c.want)
		}
	}
}

func TestLimitLiteral(t *testing.T) {
	if got := Limit("claude-sonnet-4-6"); got != 200_000 {
		t.Errorf("Limit = %d, want 200000", got)
	}
}

func TestThresholdBoundaryPercents(t *testing.T) {
	if got := Threshold("claude-sonnet-4-6", 0); got != 0 {
		t.Errorf("Threshold at 0%% = %d, want 0", got)
	}
	if got := Threshold("claude-sonnet-4-6", 100); got != 200_000 {
		t.Errorf("Threshold at 100%% = %d, want 200000", got)
	}
	if got := Threshold("claude-sonnet-4-6", 1); got != 2000 {
		t.Errorf("Threshold at 1%% = %d, want 2000", got)
	}
}
