package core

import (
	"testing"

	"github.com/google/uuid"
)

func histVersion(n int, t ChangeType, name string) PersonVersion {
	return PersonVersion{ID: uuid.New(), VersionNumber: n, ChangeType: t, Snapshot: PersonFields{Name: StringPtr(name)}}
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name        string
		versions    []PersonVersion
		wantErr     bool
		wantVersion int
		wantDeleted bool
		wantName    string
	}{
		{
			name:        "insert update",
			versions:    []PersonVersion{histVersion(2, ChangeUpdate, "b"), histVersion(1, ChangeInsert, "a")},
			wantVersion: 2,
			wantName:    "b",
		},
		{
			name:        "deleted then restored",
			versions:    []PersonVersion{histVersion(1, ChangeInsert, "a"), histVersion(2, ChangeDelete, "a"), histVersion(3, ChangeUpdate, "c")},
			wantVersion: 3,
			wantName:    "c",
		},
		{
			name:        "ends deleted",
			versions:    []PersonVersion{histVersion(1, ChangeInsert, "a"), histVersion(2, ChangeDelete, "a")},
			wantVersion: 2,
			wantDeleted: true,
			wantName:    "a",
		},
		{
			name:     "gap",
			versions: []PersonVersion{histVersion(1, ChangeInsert, "a"), histVersion(3, ChangeUpdate, "b")},
			wantErr:  true,
		},
		{
			name:     "starts with update",
			versions: []PersonVersion{histVersion(1, ChangeUpdate, "a")},
			wantErr:  true,
		},
		{
			name:     "second insert",
			versions: []PersonVersion{histVersion(1, ChangeInsert, "a"), histVersion(2, ChangeInsert, "b")},
			wantErr:  true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := Replay(tt.versions)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", st)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if st.Version != tt.wantVersion || st.IsDeleted != tt.wantDeleted || *st.Fields.Name != tt.wantName {
				t.Errorf("got version=%d deleted=%t name=%s", st.Version, st.IsDeleted, *st.Fields.Name)
			}
		})
	}
}

func TestVerifyHistory(t *testing.T) {
	versions := []PersonVersion{histVersion(1, ChangeInsert, "a"), histVersion(2, ChangeUpdate, "b")}
	person := Person{ID: uuid.New(), ExternalID: "A1", CurrentVersion: 2, Fields: PersonFields{Name: StringPtr("b")}}

	if r := VerifyHistory(person, versions); !r.Consistent {
		t.Errorf("expected consistent, got %v", r.Problems)
	}

	person.Fields.Name = StringPtr("tampered")
	person.IsDeleted = true
	r := VerifyHistory(person, versions)
	if r.Consistent {
		t.Fatal("expected inconsistency")
	}
	if len(r.Problems) != 2 {
		t.Errorf("Problems = %v, want 2 entries", r.Problems)
	}
}
