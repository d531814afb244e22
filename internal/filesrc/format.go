// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package filesrc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	arrowmem "github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"gopkg.in/yaml.v3"
)

// Format identifies a dataset file encoding.
type Format int

const (
	// FormatUnknown is an unsupported encoding.
	FormatUnknown Format = iota
	// FormatJSON is a JSON array of objects.
	FormatJSON
	// FormatJSONLines holds one JSON object per line.
	FormatJSONLines
	// FormatYAML is a YAML sequence of mappings.
	FormatYAML
	// FormatArrow is an Apache Arrow IPC file.
	FormatArrow
	// FormatParquet is an Apache Parquet file.
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatJSONLines:
		return "jsonl"
	case FormatYAML:
		return "yaml"
	case FormatArrow:
		return "arrow"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// Writable returns true if records can be written back in this format.
func (f Format) Writable() bool {
	switch f {
	case FormatJSON, FormatJSONLines, FormatYAML:
		return true
	default:
		return false
	}
}

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".jsonl", ".ndjson":
		return FormatJSONLines
	case ".yaml", ".yml":
		return FormatYAML
	case ".arrow", ".ipc", ".feather":
		return FormatArrow
	case ".parquet":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// ReadFile decodes the records held in path.
func ReadFile(ctx context.Context, path string, f Format) ([]datasource.Record, error) {
	switch f {
	case FormatArrow:
		return readArrow(path)
	case FormatParquet:
		return readParquet(ctx, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Decode(raw, f)
}

// Decode parses raw as a sequence of records.
func Decode(raw []byte, f Format) ([]datasource.Record, error) {
	var (
		rr  []datasource.Record
		err error
	)
	switch f {
	case FormatJSON:
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		err = json.Unmarshal(raw, &rr)
	case FormatJSONLines:
		rr, err = decodeLines(raw)
	case FormatYAML:
		err = yaml.Unmarshal(raw, &rr)
	default:
		return nil, fmt.Errorf("cannot decode %s data", f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f, err)
	}

	return rr, nil
}

// Encode serializes records in a writable format.
func Encode(rr []datasource.Record, f Format) ([]byte, error) {
	if rr == nil {
		rr = []datasource.Record{}
	}
	switch f {
	case FormatJSON:
		raw, err := json.MarshalIndent(rr, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(raw, '\n'), nil
	case FormatJSONLines:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range rr {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(plain(rr))
	default:
		return nil, fmt.Errorf("cannot encode %s data", f)
	}
}

func decodeLines(raw []byte) ([]datasource.Record, error) {
	var rr []datasource.Record
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r datasource.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		rr = append(rr, r)
	}

	return rr, sc.Err()
}

// plain converts records so the YAML encoder sees basic types.
func plain(rr []datasource.Record) []map[string]any {
	out := make([]map[string]any, 0, len(rr))
	for _, r := range rr {
		m := make(map[string]any, len(r))
		for k, v := range r {
			if id, ok := v.(datasource.ID); ok {
				v = id.Value()
			}
			m[k] = v
		}
		out = append(out, m)
	}
	return out
}

func readArrow(path string) ([]datasource.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(arrowmem.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}
	defer r.Close()

	var rr []datasource.Record
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read arrow batch %d: %w", i, err)
		}
		rr = appendRecords(rr, rec)
	}

	return rr, nil
}

func readParquet(ctx context.Context, path string) ([]datasource.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f, file.WithReadProps(&parquet.ReaderProperties{}))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	ar, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, arrowmem.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}
	table, err := ar.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}
	defer table.Release()

	tr := array.NewTableReader(table, table.NumRows())
	defer tr.Release()

	var rr []datasource.Record
	for tr.Next() {
		rr = appendRecords(rr, tr.Record())
	}
	if tr.Err() != nil {
		return nil, fmt.Errorf("error reading table: %w", tr.Err())
	}

	return rr, nil
}

func appendRecords(rr []datasource.Record, rec arrow.Record) []datasource.Record {
	schema := rec.Schema()
	for row := 0; row < int(rec.NumRows()); row++ {
		r := make(datasource.Record, rec.NumCols())
		for c, col := range rec.Columns() {
			r[schema.Field(c).Name] = typedValue(col, row)
		}
		rr = append(rr, r)
	}

	return rr
}

func typedValue(col arrow.Array, pos int) any {
	if col.IsNull(pos) {
		return nil
	}

	switch c := col.(type) {
	case *array.String:
		return c.Value(pos)
	case *array.Binary:
		return string(c.Value(pos))
	case *array.Boolean:
		return c.Value(pos)
	case *array.Int8:
		return int64(c.Value(pos))
	case *array.Int16:
		return int64(c.Value(pos))
	case *array.Int32:
		return int64(c.Value(pos))
	case *array.Int64:
		return c.Value(pos)
	case *array.Uint8:
		return int64(c.Value(pos))
	case *array.Uint16:
		return int64(c.Value(pos))
	case *array.Uint32:
		return int64(c.Value(pos))
	case *array.Float32:
		return float64(c.Value(pos))
	case *array.Float64:
		return c.Value(pos)
	default:
		return col.GetOneForMarshal(pos)
	}
}
