package models

import "time"

// CandidateResponse is a generated reply that has not yet been approved.
// It lives for a single cycle unless it is wrapped in an ApprovalRequest.
type CandidateResponse struct {
	SourcePostID  string    `json:"source_post_id"`
	GeneratedText string    `json:"generated_text"`
	FilteredText  string    `json:"filtered_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// ApprovalStatus is the lifecycle of an ApprovalRequest. Pending is the
// only non-terminal status.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
	StatusExpired  ApprovalStatus = "expired"
)

// Terminal reports whether the status ends the request's lifecycle.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// ApprovalRequest is a candidate reply waiting for a human decision. It
// is persisted so a crash between dispatch and decision can be resumed.
type ApprovalRequest struct {
	ID        string            `json:"id"`
	Candidate CandidateResponse `json:"candidate"`
	Status    ApprovalStatus    `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
