package metadata

import "testing"

func TestNextStatus(t *testing.T) {
	tests := []struct {
		current ApprovalStatus
		cap     Capability
		want    ApprovalStatus
		ok      bool
	}{
		{StatusPending, CapabilitySignoff, StatusApproved, true},
		{StatusInProgress, CapabilitySignoff, StatusApproved, true},
		{StatusPending, CapabilityUpdateApprove, StatusInProgress, true},
		{StatusInProgress, CapabilityUpdateApprove, StatusInProgress, true},
		{StatusPending, CapabilityInsert, StatusPending, false},
		{StatusApproved, CapabilitySignoff, StatusApproved, false},
		{StatusApproved, CapabilityUpdateApprove, StatusApproved, false},
	}
	for _, tt := range tests {
		got, ok := NextStatus(tt.current, tt.cap)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NextStatus(%s, %s) = (%s, %v), want (%s, %v)", tt.current, tt.cap, got, ok, tt.want, tt.ok)
		}
	}
}

// Status never moves backward for any capability.
func TestNextStatus_Monotonic(t *testing.T) {
	caps := []Capability{CapabilityInsert, CapabilityUpdateApprove, CapabilitySignoff}
	for _, s := range ApprovalStatuses {
		for _, c := range caps {
			next, _ := NextStatus(s, c)
			if next.rank() < s.rank() {
				t.Errorf("%s with %s moved backward to %s", s, c, next)
			}
		}
	}
}

func TestParseCapability(t *testing.T) {
	if _, err := ParseCapability("SIGNOFF"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseCapability("ADMIN"); err == nil {
		t.Error("expected error for unknown capability")
	}
}
