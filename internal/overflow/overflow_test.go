package overflow

import "testing"

func TestDecideLiterals(t *testing.T) {
	d := Decide(2, 3, "claude-sonnet-4-6", "claude-opus-4-6")
	if d.Action != ActionSplit || d.NextModel != "claude-sonnet-4-6" {
		t.Errorf("Decide(2,3) = %+v, want split/claude-sonnet-4-6", d)
	}

	d = Decide(3, 3, "claude-sonnet-4-6", "claude-opus-4-6")
	if d.Action != ActionEscalate || d.NextModel != "claude-opus-4-6" {
		t.Errorf("Decide(3,3) = %+v, want escalate/claude-opus-4-6", d)
	}
}

func TestDecideZeroBudget(t *testing.T) {
	d := Decide(0, 0, "split-model", "extended-model")
	if d.Action != ActionEscalate {
		t.Errorf("Decide(0,0) = %+v, want escalate", d)
	}
}
