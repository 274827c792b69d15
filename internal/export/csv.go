package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// flusher lets export writers push partial output to an HTTP response
// without importing net/http: http.ResponseWriter satisfies it implicitly.
type flusher interface {
	Flush()
}

func flushIfPossible(w io.Writer) {
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
}

func formatCSVValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func writeCSV(w io.Writer, columns []string, rows []map[string]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(columns, r)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// streamCSV emits the header on the first write, then rows in chunks of
// chunkSize, flushing w between chunks. Subsequent chunks emit data only,
// per §4.6.
func streamCSV(w io.Writer, columns []string, rows []map[string]any, chunkSize int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	flushIfPossible(w)

	for i := 0; i < len(rows); i += chunkSize {
		end := i + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, r := range rows[i:end] {
			if err := cw.Write(csvRecord(columns, r)); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		flushIfPossible(w)
	}
	return nil
}

func csvRecord(columns []string, row map[string]any) []string {
	record := make([]string, len(columns))
	for i, c := range columns {
		record[i] = formatCSVValue(row[c])
	}
	return record
}
