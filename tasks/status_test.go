package tasks

import "testing"

func TestCanTransition_Table(t *testing.T) {
	allowed := map[Status][]Status{
		StatusOpen:       {StatusAssigned},
		StatusAssigned:   {StatusInProgress, StatusBlocked, StatusDelivered},
		StatusInProgress: {StatusBlocked, StatusReview, StatusDelivered},
		StatusBlocked:    {StatusInProgress, StatusReview},
		StatusReview:     {StatusInProgress, StatusDelivered},
	}

	for _, from := range Statuses() {
		for _, to := range Statuses() {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := CanTransition(string(from), string(to)); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_DeliveredIsTerminal(t *testing.T) {
	for _, to := range Statuses() {
		if CanTransition("delivered", string(to)) {
			t.Errorf("delivered should not transition to %s", to)
		}
		if CanTransition("delivered: shipped", string(to)) {
			t.Errorf("legacy delivered should not transition to %s", to)
		}
	}
}

func TestCanTransition_NeverIntoFailed(t *testing.T) {
	for _, from := range Statuses() {
		if CanTransition(string(from), "failed") {
			t.Errorf("%s should not reach failed through the general table", from)
		}
	}
}

func TestCanTransition_Unknown(t *testing.T) {
	if CanTransition("open", "done") {
		t.Error("unknown target should not be allowed")
	}
	if CanTransition("paused", "open") {
		t.Error("unknown source should not be allowed")
	}
	if CanTransition("", "") {
		t.Error("empty statuses should not be allowed")
	}
}

func TestCanTransition_LegacyTarget(t *testing.T) {
	if !CanTransition("review", "delivered: looks good") {
		t.Error("review → legacy delivered should be allowed")
	}
	if CanTransition("open", "delivered: too early") {
		t.Error("open → legacy delivered should not be allowed")
	}
}

func TestIsValidStatus(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"open", true},
		{"assigned", true},
		{"in_progress", true},
		{"blocked", true},
		{"review", true},
		{"delivered", true},
		{"failed", true},
		{"delivered: anything", true},
		{"delivered:", true},
		{"unknown", false},
		{"Delivered", false},
		{"", false},
		{" open", false},
	}

	for _, tt := range tests {
		if got := IsValidStatus(tt.in); got != tt.want {
			t.Errorf("IsValidStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseStatus_NormalizesLegacy(t *testing.T) {
	st, ok := ParseStatus("delivered: anything")
	if !ok {
		t.Fatal("expected legacy status to parse")
	}
	if st != StatusDelivered {
		t.Errorf("ParseStatus = %s, want delivered", st)
	}
	if Normalize("in_progress") != "in_progress" {
		t.Error("Normalize should leave canonical statuses alone")
	}
}

func TestStatus_Predicates(t *testing.T) {
	if !StatusDelivered.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("delivered and failed are terminal")
	}
	if StatusReview.IsTerminal() {
		t.Error("review is not terminal")
	}
	if !StatusAssigned.IsHeld() || !StatusInProgress.IsHeld() {
		t.Error("assigned and in_progress are held")
	}
	if StatusBlocked.IsHeld() || StatusOpen.IsHeld() {
		t.Error("blocked and open are not held")
	}
}
