package core

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionSnapshotApply     AuditAction = "snapshot_apply"
	ActionRollback          AuditAction = "rollback"
	ActionRollbackForced    AuditAction = "rollback_forced"
	ActionSubmissionCreate  AuditAction = "submission_create"
	ActionSubmissionApprove AuditAction = "submission_approve"
	ActionSubmissionReject  AuditAction = "submission_reject"
	ActionManualEdit        AuditAction = "manual_edit"
)

// ParseAuditAction accepts a known action name.
func ParseAuditAction(s string) (AuditAction, bool) {
	switch a := AuditAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionSnapshotApply, ActionRollback, ActionRollbackForced,
		ActionSubmissionCreate, ActionSubmissionApprove, ActionSubmissionReject, ActionManualEdit:
		return a, true
	}
	return "", false
}

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// Audit resource types.
const (
	ResourceChangeSource = "change_source"
	ResourceSubmission   = "submission"
	ResourcePerson       = "person"
)

// AuditEntry represents a single audit log entry. Entries are append-only.
type AuditEntry struct {
	ID             uuid.UUID      `json:"id"`
	Action         AuditAction    `json:"action"`
	Severity       AuditSeverity  `json:"severity"`
	PrincipalID    string         `json:"principalId"`
	Role           Role           `json:"role"`
	ResourceType   string         `json:"resourceType"`
	ResourceID     string         `json:"resourceId"`
	ChangeSourceID *uuid.UUID     `json:"changeSourceId,omitempty"`
	RowsAffected   int            `json:"rowsAffected"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action         AuditAction
	Principal      Principal
	ResourceType   string
	ResourceID     string
	ChangeSourceID *uuid.UUID
	RowsAffected   int
	Metadata       map[string]any
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionRollback, ActionRollbackForced:
		return SeverityCritical
	case ActionSnapshotApply, ActionManualEdit:
		return SeverityHigh
	case ActionSubmissionCreate:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// AuditRecorder appends audit entries inside the caller's transaction, so
// an entry exists exactly when the audited action committed.
type AuditRecorder struct {
	now func() time.Time
}

// NewAuditRecorder creates a recorder. A nil clock uses time.Now.
func NewAuditRecorder(now func() time.Time) *AuditRecorder {
	if now == nil {
		now = time.Now
	}
	return &AuditRecorder{now: now}
}

// Record builds the entry from params and request metadata carried by ctx,
// and appends it through tx.
func (a *AuditRecorder) Record(ctx context.Context, tx Tx, params AuditLogParams) (AuditEntry, error) {
	entry := AuditEntry{
		ID:             uuid.New(),
		Action:         params.Action,
		Severity:       determineSeverity(params.Action),
		PrincipalID:    params.Principal.ID,
		Role:           params.Principal.Role,
		ResourceType:   params.ResourceType,
		ResourceID:     params.ResourceID,
		ChangeSourceID: params.ChangeSourceID,
		RowsAffected:   params.RowsAffected,
		IPAddress:      GetIPAddressFromContext(ctx),
		UserAgent:      GetUserAgentFromContext(ctx),
		Metadata:       params.Metadata,
		CreatedAt:      a.now().UTC(),
	}
	if client := GetClientFromContext(ctx); client != "" {
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]any, 1)
		}
		entry.Metadata["client"] = client
	}

	if err := tx.AppendAudit(ctx, entry); err != nil {
		return AuditEntry{}, Persistence("append audit", err)
	}
	return entry, nil
}

// AuditLogResult is one page of audit entries.
type AuditLogResult struct {
	Entries    []AuditEntry `json:"entries"`
	TotalCount int64        `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

func newAuditLogResult(entries []AuditEntry, total int64, limit, offset int) AuditLogResult {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return AuditLogResult{
		Entries:    entries,
		TotalCount: total,
		Page:       offset/limit + 1,
		PageSize:   limit,
		TotalPages: totalPages,
	}
}

var auditCSVHeader = []string{
	"id", "created_at", "action", "severity", "principal_id", "role",
	"resource_type", "resource_id", "change_source_id", "rows_affected",
	"ip_address", "user_agent", "metadata",
}

// WriteAuditCSV writes entries as CSV with a header row.
func WriteAuditCSV(w io.Writer, entries []AuditEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditCSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		source := ""
		if e.ChangeSourceID != nil {
			source = e.ChangeSourceID.String()
		}
		meta := ""
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return err
			}
			meta = string(b)
		}
		if err := cw.Write([]string{
			e.ID.String(),
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Action),
			string(e.Severity),
			e.PrincipalID,
			string(e.Role),
			e.ResourceType,
			e.ResourceID,
			source,
			strconv.Itoa(e.RowsAffected),
			e.IPAddress,
			e.UserAgent,
			meta,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
