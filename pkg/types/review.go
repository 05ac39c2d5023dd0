package types

// ReviewStatus is the review state of a FileAnalysis.
type ReviewStatus string

// Review states. Approved and rejected are terminal.
const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusRejected ReviewStatus = "rejected"
)

// ValidReviewStatuses contains every review state.
var ValidReviewStatuses = []ReviewStatus{
	StatusPending,
	StatusApproved,
	StatusRejected,
}

// IsValid reports whether s is a known review state.
func (s ReviewStatus) IsValid() bool {
	for _, v := range ValidReviewStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s ReviewStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IsValidReviewTransition validates a review state change.
//
// Valid transitions:
//
//	pending -> approved
//	pending -> rejected
//	approved, rejected -> (terminal)
//
// A terminal record only returns to pending when the file is processed again,
// which replaces the record rather than transitioning it.
func IsValidReviewTransition(current, next ReviewStatus) bool {
	if current != StatusPending {
		return false
	}
	return next == StatusApproved || next == StatusRejected
}
