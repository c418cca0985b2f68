package ucb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"eventcat/internal/catalog"
	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

type photEntry struct {
	entry
	PhotID text `json:"PhotID"`
}

// Photometry returns the ucb.photometry task.
func Photometry(src Source) task.Func {
	return func(ctx context.Context, cat *catalog.Catalog, h *task.Handle) error {
		res, err := src.Cached(ctx, baseURL+"download?id=allpubphot", "UCB/allpubphot.json", h.LoadArchive)
		if err != nil {
			return err
		}
		rows, err := decodeIndex(res.Data, func(p photEntry) string { return p.ObjName.String() })
		if err != nil {
			return err
		}
		h.Log.Info("photometry index loaded", logx.Int("records", len(rows)), logx.Bool("cached", res.FromCache))

		var added, skipped int
		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			if h.Exhausted(i) {
				break
			}
			n, err := importPhotometry(ctx, cat, h, src, row)
			var mie *catalog.MissingIdentityError
			if errors.As(err, &mie) {
				skipped++
				h.Log.Warn("photometry record skipped", logx.String("object", row.ObjName.String()), logx.Err(err))
				continue
			}
			if err != nil {
				return fmt.Errorf("%s: %w", row.ObjName.String(), err)
			}
			added += n
		}
		h.Log.Info("photometry imported", logx.Int("points", added), logx.Int("skipped", skipped))
		return nil
	}
}

func importPhotometry(ctx context.Context, cat *catalog.Catalog, h *task.Handle, src Source, row photEntry) (int, error) {
	name, sources, err := ingestMeta(cat, row.entry)
	if err != nil {
		return 0, err
	}
	filename, id := row.Filename.String(), row.PhotID.String()
	if filename == "" {
		return 0, &catalog.MissingIdentityError{Kind: "photometry", Event: name, Field: "filename"}
	}
	if id == "" {
		return 0, &catalog.MissingIdentityError{Kind: "photometry", Event: name, Field: "id"}
	}

	res, err := src.Cached(ctx, baseURL+"download?id=dp:"+id, "SNDB/"+filename, h.LoadArchive)
	if err != nil {
		return 0, err
	}
	points, err := parsePhotometry(string(res.Data))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filename, err)
	}
	for _, p := range points {
		p.Filename = filename
		p.RecordID = id
		p.Sources = sources
		if err := cat.AddPhotometry(name, p); err != nil {
			return 0, err
		}
	}
	return len(points), nil
}

// parsePhotometry reads whitespace-separated rows of
// "MJD mag e_mag <unused> band telescope". Comments and magnitudes above 99
// (non-detections) are dropped.
func parsePhotometry(body string) ([]catalog.PhotometryRecord, error) {
	var out []catalog.PhotometryRecord
	for n, line := range strings.Split(body, "\n") {
		row := strings.Fields(line)
		if len(row) == 0 || strings.HasPrefix(row[0], "#") {
			continue
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("line %d: want 6 columns, got %d", n+1, len(row))
		}
		if row[1] != "" {
			mag, err := strconv.ParseFloat(row[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: magnitude %q: %w", n+1, row[1], err)
			}
			if mag > 99 {
				continue
			}
		}
		out = append(out, catalog.PhotometryRecord{
			Time:       row[0],
			TimeUnit:   "MJD",
			Magnitude:  row[1],
			EMagnitude: row[2],
			Band:       row[4],
			Telescope:  row[5],
		})
	}
	return out, nil
}
