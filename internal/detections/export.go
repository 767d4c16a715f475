package detections

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{"id", "g_id", "object_type", "color", "confidence", "ref_count", "created_at", "updated_at"}

// ExportCSV writes the detections matching f as CSV. A missing confidence is
// written as N/A.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, f Filter) error {
	items, err := s.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, d := range items {
		confidence := "N/A"
		if d.Confidence != nil {
			confidence = strconv.FormatFloat(float64(*d.Confidence), 'f', -1, 32)
		}
		record := []string{
			strconv.FormatUint(uint64(d.ID), 10),
			d.GID,
			d.ObjectType,
			d.Color,
			confidence,
			strconv.FormatInt(d.RefCount, 10),
			d.CreatedAt.UTC().Format(exportTimeLayout),
			d.UpdatedAt.UTC().Format(exportTimeLayout),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
