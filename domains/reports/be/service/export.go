package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// export renders the result set in the requested format and uploads it,
// returning the blob URL recorded on the execution row.
func (s *Service) export(ctx context.Context, tenantID, executionID uuid.UUID, format string, columns []string, rows []map[string]any) (string, error) {
	var (
		payload     []byte
		contentType string
		err         error
	)
	switch strings.ToLower(format) {
	case "json":
		payload, err = json.Marshal(map[string]any{"columns": columns, "rows": rows})
		contentType = "application/json"
	case "csv":
		payload, err = renderCSV(columns, rows)
		contentType = "text/csv"
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}

	ext := strings.ToLower(format)
	key := fmt.Sprintf("exports/%s/%s.%s", tenantID, executionID, ext)
	return s.blobs.Put(ctx, key, contentType, payload)
}

func renderCSV(columns []string, rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			value := row[col]
			if value == nil {
				record[i] = ""
				continue
			}
			record[i] = fmt.Sprintf("%v", value)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
