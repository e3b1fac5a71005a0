package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the moderation state of a community submission.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "PENDING"
	StatusApproved SubmissionStatus = "APPROVED"
	StatusRejected SubmissionStatus = "REJECTED"
)

// ParseSubmissionStatus accepts the upper- or lowercase status name.
func ParseSubmissionStatus(s string) (SubmissionStatus, bool) {
	switch st := SubmissionStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Submission is a proposed single-person edit awaiting moderation.
// BaseVersionID is the version the submitter edited from.
type Submission struct {
	ID              uuid.UUID        `json:"id"`
	PersonID        uuid.UUID        `json:"personId"`
	BaseVersionID   uuid.UUID        `json:"baseVersionId"`
	Proposed        Patch            `json:"proposedPayload"`
	Status          SubmissionStatus `json:"status"`
	SubmitterID     string           `json:"submitterId"`
	Reason          string           `json:"reason,omitempty"`
	DecidedBy       string           `json:"decidedBy,omitempty"`
	DecidedAt       *time.Time       `json:"decidedAt,omitempty"`
	DecisionNote    string           `json:"decisionNote,omitempty"`
	AppliedSourceID *uuid.UUID       `json:"appliedSourceId,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// CanDecide reports whether the submission may still be approved or rejected.
func (s *Submission) CanDecide() bool {
	return s.Status == StatusPending
}

// Approve moves a pending submission to APPROVED.
func (s *Submission) Approve(by string, at time.Time, note string, sourceID uuid.UUID) error {
	if !s.CanDecide() {
		return s.alreadyDecided("approve submission")
	}
	s.Status = StatusApproved
	s.DecidedBy = by
	s.DecidedAt = &at
	s.DecisionNote = note
	s.AppliedSourceID = &sourceID
	return nil
}

// Reject moves a pending submission to REJECTED.
func (s *Submission) Reject(by string, at time.Time, note string) error {
	if !s.CanDecide() {
		return s.alreadyDecided("reject submission")
	}
	s.Status = StatusRejected
	s.DecidedBy = by
	s.DecidedAt = &at
	s.DecisionNote = note
	return nil
}

func (s *Submission) alreadyDecided(op string) error {
	return Conflict(op, CodeAlreadyDecided, "submission is already "+string(s.Status), s.ID.String())
}
