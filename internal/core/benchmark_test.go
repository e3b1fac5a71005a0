package core

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkParseDate covers the date formats seen in ministry exports.
func BenchmarkParseDate(b *testing.B) {
	testCases := []string{
		"2023-10-10",
		"10/10/2023",
		"2023-10-10T00:00:00Z",
		"  2023-10-10  ",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseDate(tc)
		}
	}
}

func BenchmarkParseNumber(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseNumber("31.5012345")
	}
}

// BenchmarkCleanCell is hit once per cell of every snapshot.
func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"Ahmad",
		"  padded value  ",
		"\ufeffA1",
		"",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			CleanCell(tc)
		}
	}
}

func BenchmarkMakeHeaderIndex(b *testing.B) {
	header := ExportColumns()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MakeHeaderIndex(header)
	}
}

// ============================================================================
// Snapshot Benchmarks
// ============================================================================

func benchSnapshot(rows int) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(ExportColumns(), ",") + "\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&buf, "EXT%06d,Name %d,Name %d,male,1990-01-01,2023-10-%02d,Gaza,31.5,34.4,,\n",
			i, i, i, i%28+1)
	}
	return buf.Bytes()
}

func BenchmarkParseSnapshot(b *testing.B) {
	data := benchSnapshot(10000)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseSnapshot(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkComputeDiff diffs a snapshot where every tenth row changed and
// the last hundred current records are missing.
func BenchmarkComputeDiff(b *testing.B) {
	rows, err := ParseSnapshot(bytes.NewReader(benchSnapshot(10000)))
	if err != nil {
		b.Fatal(err)
	}

	current := make(map[string]CurrentRecord, len(rows)+100)
	for i, row := range rows {
		fields := row.Fields
		if i%10 == 0 {
			name := "Old name"
			fields.Name = &name
		}
		current[row.ExternalID] = CurrentRecord{PersonID: uuid.New(), ExternalID: row.ExternalID, Version: 1, Fields: fields}
	}
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("GONE%03d", i)
		current[id] = CurrentRecord{PersonID: uuid.New(), ExternalID: id, Version: 1}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		diff, err := ComputeDiff(current, rows)
		if err != nil {
			b.Fatal(err)
		}
		if diff.Stats().Deleted != 100 {
			b.Fatalf("deleted = %d, want 100", diff.Stats().Deleted)
		}
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

func BenchmarkParseDateParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ParseDate("2023-10-10")
		}
	})
}

func BenchmarkCleanCellParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			CleanCell("  Ahmad  ")
		}
	})
}
