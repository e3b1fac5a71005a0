package core

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
)

// ExportColumns is the fixed column order of the person export.
func ExportColumns() []string {
	cols := make([]string, 0, len(FieldSpecs)+1)
	cols = append(cols, ColExternalID)
	for _, spec := range FieldSpecs {
		cols = append(cols, spec.Name)
	}
	return cols
}

// exportFlushInterval is how many rows are buffered between flushes.
const exportFlushInterval = 1000

// ExportPersons streams every non-deleted person as CSV, ordered by
// external id. Missing values are written as empty cells. When w is an
// http.Flusher it is flushed periodically.
func ExportPersons(ctx context.Context, r Reader, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns()); err != nil {
		return 0, err
	}

	rows := 0
	record := make([]string, len(FieldSpecs)+1)
	err := r.EachPerson(ctx, false, func(p Person) error {
		record[0] = p.ExternalID
		for i, spec := range FieldSpecs {
			v, _ := p.Fields.Value(spec.Name)
			record[i+1] = v
		}
		if err := cw.Write(record); err != nil {
			return err
		}

		rows++
		if rows%exportFlushInterval == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		return nil
	})
	cw.Flush()
	if err != nil {
		return rows, Persistence("export persons", err)
	}
	return rows, cw.Error()
}
