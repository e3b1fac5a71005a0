package postgres

import (
	"testing"
	"time"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

func TestNewWhereBuilder(t *testing.T) {
	wb := NewWhereBuilder()

	if wb.argIndex != 1 {
		t.Errorf("expected argIndex to be 1, got %d", wb.argIndex)
	}
	if len(wb.conditions) != 0 {
		t.Errorf("expected empty conditions, got %d", len(wb.conditions))
	}
}

func TestWhereBuilder_Build_Empty(t *testing.T) {
	whereClause, args := NewWhereBuilder().Build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_Add(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("action", "rollback")
	wb.Add("resource_type", "")
	wb.Add("principal_id", "admin-1")

	whereClause, args := wb.Build()

	expected := " WHERE action = $1 AND principal_id = $2"
	if whereClause != expected {
		t.Errorf("expected %q, got %q", expected, whereClause)
	}
	if len(args) != 2 || args[0] != "rollback" || args[1] != "admin-1" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestWhereBuilder_AddTimeRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	tests := []struct {
		name       string
		start, end time.Time
		wantClause string
		wantArgs   []any
	}{
		{"both bounds", start, end, " WHERE action = $1 AND created_at >= $2 AND created_at <= $3", []any{"manual_edit", start, end}},
		{"start only", start, time.Time{}, " WHERE action = $1 AND created_at >= $2", []any{"manual_edit", start}},
		{"end only", time.Time{}, end, " WHERE action = $1 AND created_at <= $2", []any{"manual_edit", end}},
		{"open range", time.Time{}, time.Time{}, " WHERE action = $1", []any{"manual_edit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder().Add("action", "manual_edit").AddTimeRange("created_at", tt.start, tt.end)

			gotClause, gotArgs := wb.Build()
			if gotClause != tt.wantClause {
				t.Errorf("clause = %q, want %q", gotClause, tt.wantClause)
			}
			if len(gotArgs) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", gotArgs, tt.wantArgs)
			}
			for i := range gotArgs {
				if gotArgs[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, gotArgs[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestWhereBuilder_NextArgIndex(t *testing.T) {
	wb := NewWhereBuilder()

	if wb.NextArgIndex() != 1 {
		t.Errorf("expected initial NextArgIndex to be 1, got %d", wb.NextArgIndex())
	}

	wb.Add("col1", "val1")
	wb.AddRaw("is_deleted = false")
	if wb.NextArgIndex() != 2 {
		t.Errorf("expected NextArgIndex after 1 arg to be 2, got %d", wb.NextArgIndex())
	}

	now := time.Now()
	wb.AddTimeRange("created_at", now, now)
	if wb.NextArgIndex() != 4 {
		t.Errorf("expected NextArgIndex after time range to be 4, got %d", wb.NextArgIndex())
	}
}

func TestAuditWhere(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		filter     core.AuditFilter
		wantClause string
	}{
		{"no filter", core.AuditFilter{}, ""},
		{
			"resource and open-ended range",
			core.AuditFilter{ResourceType: core.ResourceSubmission, StartTime: since},
			" WHERE resource_type = $1 AND created_at >= $2",
		},
		{
			"every filter",
			core.AuditFilter{
				Action:       core.ActionRollback,
				ResourceType: core.ResourceChangeSource,
				ResourceID:   "cs-1",
				PrincipalID:  "admin-1",
				StartTime:    since,
				EndTime:      since.AddDate(0, 0, 7),
			},
			" WHERE action = $1 AND resource_type = $2 AND resource_id = $3 AND principal_id = $4" +
				" AND created_at >= $5 AND created_at <= $6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := auditWhere(tt.filter).Build()
			if got != tt.wantClause {
				t.Errorf("clause = %q, want %q", got, tt.wantClause)
			}
		})
	}
}

func TestWhereBuilder_AddPrefix(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddRaw("NOT is_deleted")
	wb.AddPrefix("Ah", "name", "name_english")

	gotClause, gotArgs := wb.Build()

	expected := ` WHERE NOT is_deleted AND ("name" ILIKE $1 OR "name_english" ILIKE $1)`
	if gotClause != expected {
		t.Errorf("clause = %q, want %q", gotClause, expected)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "Ah%" {
		t.Errorf("args = %v", gotArgs)
	}

	_, gotArgs = NewWhereBuilder().AddPrefix(`50%_a\`, "name").Build()
	if len(gotArgs) != 1 || gotArgs[0] != `50\%\_a\\%` {
		t.Errorf("escaped args = %v", gotArgs)
	}

	if clause, _ := NewWhereBuilder().AddPrefix("", "name").Build(); clause != "" {
		t.Errorf("empty prefix clause = %q, want empty", clause)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"name", `"name"`},
		{`we"ird`, `"we""ird"`},
		{"", `""`},
	}

	for _, tt := range tests {
		if got := quoteIdentifier(tt.input); got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
