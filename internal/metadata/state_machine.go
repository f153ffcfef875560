package metadata

// ApprovalStatus is the per-record workflow state.
type ApprovalStatus string

const (
	StatusPending    ApprovalStatus = "PENDING"
	StatusInProgress ApprovalStatus = "IN_PROGRESS"
	StatusApproved   ApprovalStatus = "APPROVED"
)

// ApprovalStatuses lists every state in workflow order.
var ApprovalStatuses = []ApprovalStatus{StatusPending, StatusInProgress, StatusApproved}

// Terminal reports whether no further transition is possible.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved
}

// rank orders states so transitions can be checked for monotonicity.
func (s ApprovalStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusApproved:
		return 2
	default:
		return -1
	}
}

// CanApprove reports whether a role with this capability may move a record
// forward at all.
func (c Capability) CanApprove() bool {
	return c == CapabilityUpdateApprove || c == CapabilitySignoff
}

// NextStatus is the whole transition table: the target depends only on the
// approver's capability. SIGNOFF finishes the workflow from any open state;
// UPDATE_APPROVE parks the record in IN_PROGRESS (re-stamping if already
// there). ok is false when the capability cannot approve or the record is
// already terminal.
func NextStatus(current ApprovalStatus, c Capability) (next ApprovalStatus, ok bool) {
	if current.Terminal() || !c.CanApprove() {
		return current, false
	}
	switch c {
	case CapabilitySignoff:
		next = StatusApproved
	default:
		next = StatusInProgress
	}
	if next.rank() < current.rank() {
		return current, false
	}
	return next, true
}
