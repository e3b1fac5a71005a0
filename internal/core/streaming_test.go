package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSnapshotReader_BOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("external_id,name")...),
			expected: "external_id,name",
		},
		{
			name:     "file without BOM",
			input:    []byte("external_id,name"),
			expected: "external_id,name",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM is sanitized, not skipped",
			input:    []byte{0xEF, 0xBB, 'a', 'b'},
			expected: "??ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewSnapshotReader(bytes.NewReader(tt.input), 0))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestSnapshotReader_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "valid ASCII",
			input:    []byte("A1,Ahmad"),
			expected: "A1,Ahmad",
		},
		{
			name:     "valid multibyte UTF-8",
			input:    []byte("A1,أحمد"),
			expected: "A1,أحمد",
		},
		{
			name:     "invalid single byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he?lo",
		},
		{
			name:     "truncated rune at EOF replaced",
			input:    []byte{'a', 0xD8},
			expected: "a?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewSnapshotReader(bytes.NewReader(tt.input), 0))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

// One byte per Read splits every multibyte rune across reads.
func TestSnapshotReader_RuneSplitAcrossReads(t *testing.T) {
	input := "A1,محمد,Gaza\n"
	r := NewSnapshotReader(iotest.OneByteReader(strings.NewReader(input)), 0)

	result, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != input {
		t.Errorf("got %q, want %q", string(result), input)
	}
	if r.BytesRead() != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", r.BytesRead(), len(input))
	}
}

func TestSnapshotReader_Limit(t *testing.T) {
	input := strings.Repeat("x", 1000)

	_, err := io.ReadAll(NewSnapshotReader(strings.NewReader(input), 100))
	if !errors.Is(err, ErrSnapshotTooLarge) {
		t.Fatalf("expected ErrSnapshotTooLarge, got %v", err)
	}

	r := NewSnapshotReader(strings.NewReader(input), 1000)
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("read at exactly the limit failed: %v", err)
	}
	if r.BytesRead() != 1000 {
		t.Errorf("BytesRead = %d, want 1000", r.BytesRead())
	}
}
