package core

import (
	"encoding/json"
	"testing"
)

func TestParsePatch(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		allowed  func(FieldSpec) bool
		wantCode string
		want     Patch
	}{
		{
			name:    "editable fields",
			raw:     map[string]any{"date_of_death": "10/17/2023", "location_of_death": " Gaza "},
			allowed: EditableBySubmission,
			want:    Patch{"date_of_death": "2023-10-17", "location_of_death": "Gaza"},
		},
		{
			name:    "coordinates together",
			raw:     map[string]any{"location_of_death_lat": 31.5, "location_of_death_lng": json.Number("34.46")},
			allowed: EditableBySubmission,
			want:    Patch{"location_of_death_lat": "31.5", "location_of_death_lng": "34.46"},
		},
		{
			name:    "null clears",
			raw:     map[string]any{"photo_url_thumb": nil},
			allowed: EditableBySubmission,
			want:    Patch{"photo_url_thumb": ""},
		},
		{
			name:     "not editable by submission",
			raw:      map[string]any{"name": "x", "gender": "male"},
			allowed:  EditableBySubmission,
			wantCode: CodeFieldNotEditable,
		},
		{
			name:    "editable by admin",
			raw:     map[string]any{"name": "x"},
			allowed: EditableByAdmin,
			want:    Patch{"name": "x"},
		},
		{
			name:     "unknown field",
			raw:      map[string]any{"favourite_colour": "red"},
			allowed:  EditableByAdmin,
			wantCode: CodeFieldNotEditable,
		},
		{
			name:     "lat without lng",
			raw:      map[string]any{"location_of_death_lat": 31.5},
			allowed:  EditableBySubmission,
			wantCode: CodeInvalidCoordinates,
		},
		{
			name:     "lat out of range",
			raw:      map[string]any{"location_of_death_lat": 91.0, "location_of_death_lng": 34.0},
			allowed:  EditableBySubmission,
			wantCode: CodeInvalidCoordinates,
		},
		{
			name:     "lat set with lng cleared",
			raw:      map[string]any{"location_of_death_lat": 31.5, "location_of_death_lng": nil},
			allowed:  EditableBySubmission,
			wantCode: CodeInvalidCoordinates,
		},
		{
			name:     "bad date",
			raw:      map[string]any{"date_of_death": "yesterday"},
			allowed:  EditableBySubmission,
			wantCode: CodeInvalidValue,
		},
		{
			name:     "empty",
			raw:      map[string]any{},
			allowed:  EditableBySubmission,
			wantCode: CodeInvalidValue,
		},
		{
			name:     "wrong type",
			raw:      map[string]any{"location_of_death": []any{"a"}},
			allowed:  EditableBySubmission,
			wantCode: CodeInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePatch("test", tt.raw, tt.allowed)
			if tt.wantCode != "" {
				e, ok := AsError(err)
				if !ok {
					t.Fatalf("expected *Error with code %s, got %v", tt.wantCode, err)
				}
				if e.Code != tt.wantCode {
					t.Errorf("Code = %s, want %s (%v)", e.Code, tt.wantCode, e)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestPatchApplyTo(t *testing.T) {
	base := PersonFields{
		Name:               StringPtr("Ahmad"),
		LocationOfDeath:    StringPtr("Gaza"),
		LocationOfDeathLat: FloatPtr(31.5),
		LocationOfDeathLng: FloatPtr(34.4),
	}

	out, err := Patch{"location_of_death": "", "date_of_death": "2023-10-17"}.ApplyTo(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.LocationOfDeath != nil {
		t.Error("empty value should clear the field")
	}
	if out.DateOfDeath == nil || *out.DateOfDeath != "2023-10-17" {
		t.Errorf("DateOfDeath = %v", out.DateOfDeath)
	}
	if *base.LocationOfDeath != "Gaza" {
		t.Error("ApplyTo must not modify its input")
	}

	if _, err := (Patch{"location_of_death_lat": ""}).ApplyTo(base); err == nil {
		t.Error("clearing one coordinate should fail")
	}
}
