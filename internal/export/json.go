package export

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
)

type jsonMetadata struct {
	DatasetID    string   `json:"dataset_id"`
	ExportedAt   string   `json:"exported_at"`
	TotalRecords int      `json:"total_records"`
	Columns      []string `json:"columns"`
}

type jsonEnvelope struct {
	Metadata jsonMetadata     `json:"metadata"`
	Data     []map[string]any `json:"data"`
}

func writeJSON(w io.Writer, datasetID string, columns []string, rows []map[string]any, now time.Time) error {
	env := jsonEnvelope{
		Metadata: jsonMetadata{
			DatasetID:    datasetID,
			ExportedAt:   now.UTC().Format(time.RFC3339),
			TotalRecords: len(rows),
			Columns:      columns,
		},
		Data: rows,
	}
	if rows == nil {
		env.Data = []map[string]any{}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal export envelope: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// streamJSON emits the metadata+data-open prelude, then each record
// comma-delimited in chunks of chunkSize, closing the envelope at the end,
// per §4.6's JSON streaming contract.
func streamJSON(w io.Writer, datasetID string, columns []string, rows []map[string]any, now time.Time, chunkSize int) error {
	meta := jsonMetadata{
		DatasetID:    datasetID,
		ExportedAt:   now.UTC().Format(time.RFC3339),
		TotalRecords: len(rows),
		Columns:      columns,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal export metadata: %w", err)
	}

	if _, err := io.WriteString(w, `{"metadata":`); err != nil {
		return err
	}
	if _, err := w.Write(metaJSON); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `,"data":[`); err != nil {
		return err
	}
	flushIfPossible(w)

	for i := 0; i < len(rows); i += chunkSize {
		end := i + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		for j := i; j < end; j++ {
			if j > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			b, err := json.Marshal(rows[j])
			if err != nil {
				return fmt.Errorf("marshal export row: %w", err)
			}
			if _, err := w.Write(b); err != nil {
				return err
			}
		}
		flushIfPossible(w)
	}

	_, err = io.WriteString(w, "]}")
	return err
}
