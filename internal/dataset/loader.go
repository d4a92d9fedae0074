package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nypoclary/lectura-backend/internal/types"
)

var ErrNoRows = errors.New("manifest has no data rows")

// columns holds the detected header positions; -1 means absent.
type columns struct {
	id, name, owner, audio, style int
}

func detectColumns(header []string) columns {
	c := columns{id: -1, name: -1, owner: -1, audio: -1, style: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "audio") || strings.Contains(l, "file") || strings.Contains(l, "path") || strings.Contains(l, "recording"):
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "owner") || strings.Contains(l, "user"):
			if c.owner == -1 {
				c.owner = i
			}
		case strings.Contains(l, "style") || strings.Contains(l, "learning") || strings.Contains(l, "vark"):
			if c.style == -1 {
				c.style = i
			}
		case strings.Contains(l, "name") || strings.Contains(l, "title") || strings.Contains(l, "lecture"):
			if c.name == -1 {
				c.name = i
			}
		case l == "id" || strings.Contains(l, "job"):
			if c.id == -1 {
				c.id = i
			}
		}
	}
	return c
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}

// Load reads a batch manifest from the first sheet of an xlsx workbook.
// Columns are matched by header keywords; rows without an audio path or
// owner are skipped.
func Load(path string) ([]types.ManifestRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("manifest has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, ErrNoRows
	}

	cols := detectColumns(rows[0])
	if cols.audio == -1 {
		return nil, errors.New("manifest has no audio column")
	}
	if cols.owner == -1 {
		return nil, errors.New("manifest has no owner column")
	}

	var out []types.ManifestRow
	for i, r := range rows[1:] {
		row := types.ManifestRow{
			Row:         i + 2,
			JobID:       cell(r, cols.id),
			DisplayName: cell(r, cols.name),
			OwnerID:     cell(r, cols.owner),
			AudioPath:   cell(r, cols.audio),
		}
		if row.AudioPath == "" || row.OwnerID == "" {
			continue
		}
		if raw := cell(r, cols.style); raw != "" {
			row.LearningStyle = types.ParseLearningStyle(raw)
		}
		if row.DisplayName == "" {
			row.DisplayName = row.AudioPath
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}
