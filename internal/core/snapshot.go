package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// MaxReportedRowErrors caps the row problems attached to a rejected snapshot.
var MaxReportedRowErrors = 50

// ParseSnapshot reads a full-snapshot CSV. The header must contain
// external_id; the remaining known columns are optional and unknown
// columns are ignored. Any malformed row invalidates the whole snapshot,
// and all row problems (up to MaxReportedRowErrors) are reported together.
func ParseSnapshot(r io.Reader) ([]SnapshotRow, error) {
	return parseSnapshot(NewSnapshotReader(r, 0))
}

// ParseSnapshotLimit is ParseSnapshot with a maximum size in bytes.
func ParseSnapshotLimit(r io.Reader, maxBytes int64) ([]SnapshotRow, error) {
	return parseSnapshot(NewSnapshotReader(r, maxBytes))
}

func parseSnapshot(src io.Reader) ([]SnapshotRow, error) {
	const op = "parse snapshot"

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, Validation(op, CodeInvalidSnapshot, "empty file")
	}
	if err != nil {
		return nil, snapshotReadError(op, err)
	}

	idx := MakeHeaderIndex(header)
	if _, ok := idx[ColExternalID]; !ok {
		return nil, Validation(op, CodeInvalidSnapshot, "missing required column: %s", ColExternalID)
	}

	var (
		rows     []SnapshotRow
		problems []string
		invalid  int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, snapshotReadError(op, err)
		}
		if isEmptyRow(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		row, errs := parseSnapshotRow(record, idx, line)
		if len(errs) > 0 {
			invalid++
			for _, e := range errs {
				if len(problems) < MaxReportedRowErrors {
					problems = append(problems, e)
				}
			}
			continue
		}
		rows = append(rows, row)
	}

	if invalid > 0 {
		return nil, Validation(op, CodeInvalidSnapshot, "snapshot has %d invalid rows", invalid).
			WithDetails(problems...)
	}
	return rows, nil
}

func parseSnapshotRow(record []string, idx HeaderIndex, line int) (SnapshotRow, []string) {
	row := SnapshotRow{Line: line, ExternalID: idx.Cell(record, ColExternalID)}

	var errs []string
	if row.ExternalID == "" {
		errs = append(errs, fmt.Sprintf("line %d: missing %s", line, ColExternalID))
	}
	for _, spec := range FieldSpecs {
		raw := idx.Cell(record, spec.Name)
		if raw == "" {
			continue
		}
		if err := row.Fields.Set(spec.Name, raw); err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %s: %v", line, spec.Name, err))
		}
	}
	if err := row.Fields.checkCoordinatePair(); err != nil {
		errs = append(errs, fmt.Sprintf("line %d: %v", line, err))
	}
	return row, errs
}

func snapshotReadError(op string, err error) error {
	if errors.Is(err, ErrSnapshotTooLarge) {
		return Validation(op, CodeInvalidSnapshot, "file too large")
	}
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return Validation(op, CodeInvalidSnapshot, "invalid csv at line %d: %v", perr.Line, perr.Err)
	}
	return Persistence(op, fmt.Errorf("read snapshot: %w", err))
}
