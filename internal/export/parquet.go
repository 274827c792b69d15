package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// buildParquetBytes serializes rows into an in-memory Parquet file via
// arrow-go, used whenever column projection or date filtering already ran
// in Go and the result can no longer be produced by a single DuckDB COPY.
// Every column is written as a nullable string, since additional_attributes
// values arrive as untyped JSON and the fixed columns are themselves
// strings in the observation model; a zero-row input still yields a valid,
// schema-bearing empty file per §4.6.
func buildParquetBytes(columns []string, rows []map[string]any) ([]byte, error) {
	pool := memory.NewGoAllocator()

	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{Name: c, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	builders := make([]*array.StringBuilder, len(columns))
	for i := range columns {
		builders[i] = array.NewStringBuilder(pool)
		defer builders[i].Release()
	}

	for _, r := range rows {
		for i, c := range columns {
			v, ok := r[c]
			if !ok || v == nil {
				builders[i].AppendNull()
				continue
			}
			builders[i].Append(formatCSVValue(v))
		}
	}

	cols := make([]arrow.Array, len(columns))
	for i, b := range builders {
		cols[i] = b.NewArray()
		defer cols[i].Release()
	}

	record := array.NewRecord(schema, cols, int64(len(rows)))
	defer record.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	writer, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// streamBytes writes data to w in fixed-size chunks, flushing w between
// chunks. Used for Parquet streaming per §4.6: "assemble to an in-memory
// buffer, then stream the bytes".
func streamBytes(w io.Writer, data []byte, chunkSize int) error {
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[i:end]); err != nil {
			return fmt.Errorf("stream parquet bytes: %w", err)
		}
		flushIfPossible(w)
	}
	return nil
}
