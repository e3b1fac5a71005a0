package core

import (
	"testing"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1990-01-02", "1990-01-02", false},
		{"1990/01/02", "1990-01-02", false},
		{"01/02/1990", "1990-01-02", false},
		{"1/2/1990", "1990-01-02", false},
		{"Jan 2, 1990", "1990-01-02", false},
		{"2 January 1990", "1990-01-02", false},
		{"19900102", "1990-01-02", false},
		{"  1990-01-02  ", "1990-01-02", false},
		{"", "", true},
		{"not a date", "", true},
		{"1990-13-40", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDate(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	got, err := ParseDate("01/02/99")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "1999-01-02" {
		t.Errorf("got %q, want 1999-01-02", got)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"31.5017", 31.5017, false},
		{"-34.4668", -34.4668, false},
		{" 0 ", 0, false},
		{"1e2", 100, false},
		{"", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"-Infinity", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseNumber(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseNumber(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNumber(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{31.5017, "31.5017"},
		{-34.4668, "-34.4668"},
		{100, "100"},
		{0.1, "0.1"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.input); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"  hello  ", "hello"},
		{`="12345"`, "12345"},
		{`  ="00123"  `, "00123"},
		{`"quoted"`, `"quoted"`},
		{`say "hi"`, `say "hi"`},
		{`="`, `="`},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{"External_ID", " Name ", "name", `="Gender"`})

	tests := []struct {
		key  string
		want int
		ok   bool
	}{
		{"external_id", 0, true},
		{"name", 1, true},
		{"gender", 3, true},
		{"missing", 0, false},
	}

	for _, tt := range tests {
		got, ok := idx[tt.key]
		if ok != tt.ok {
			t.Errorf("idx[%q] present = %v, want %v", tt.key, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("idx[%q] = %d, want %d (first duplicate wins)", tt.key, got, tt.want)
		}
	}
}

func TestHeaderIndexCell(t *testing.T) {
	idx := MakeHeaderIndex([]string{"external_id", "name", "gender"})
	row := []string{" A1 ", "Ahmad"}

	if got := idx.Cell(row, "external_id"); got != "A1" {
		t.Errorf("Cell(external_id) = %q, want A1", got)
	}
	if got := idx.Cell(row, "gender"); got != "" {
		t.Errorf("Cell on short row = %q, want empty", got)
	}
	if got := idx.Cell(row, "missing"); got != "" {
		t.Errorf("Cell(missing) = %q, want empty", got)
	}
}

func TestIsEmptyRow(t *testing.T) {
	if !isEmptyRow([]string{"", "  ", "\t"}) {
		t.Error("expected whitespace-only row to be empty")
	}
	if isEmptyRow([]string{"", "x"}) {
		t.Error("expected row with a value to be non-empty")
	}
}
