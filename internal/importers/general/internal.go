package general

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"eventcat/internal/catalog"
	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

var recordJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Internal returns the general.internal task. It merges every curated
// record in dir/*.json into the catalog, in file name order.
func Internal(dir string) task.Func {
	return func(ctx context.Context, cat *catalog.Catalog, h *task.Handle) error {
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return err
		}
		sort.Strings(files)
		if len(files) == 0 {
			h.Log.Info("no internal events", logx.String("dir", dir))
			return nil
		}

		for i, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if h.Exhausted(i) {
				break
			}
			rec, err := readRecord(path)
			if err != nil {
				return err
			}
			if _, err := cat.Restore(rec); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		}
		h.Log.Info("internal events merged", logx.Int("files", len(files)))
		return nil
	}
}

// readRecord decodes one curated record. The event name defaults to the
// file name without extension.
func readRecord(path string) (catalog.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return catalog.Record{}, err
	}
	var rec catalog.Record
	if err := recordJSON.Unmarshal(b, &rec); err != nil {
		return catalog.Record{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return rec, nil
}
