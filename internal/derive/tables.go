package derive

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

const (
	BibAuthorsFile  = "bibauthors.json"
	ExtinctionsFile = "extinctions.json"
)

// Keys sorted, HTML and non-ASCII left as is.
var tableJSON = jsoniter.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

// WriteTables writes both side tables into dir, each replaced atomically.
func WriteTables(dir string, t Tables) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, m := range map[string]map[string]string{
		BibAuthorsFile:  t.BibAuthors,
		ExtinctionsFile: t.Extinctions,
	} {
		if m == nil {
			m = map[string]string{}
		}
		b, err := tableJSON.Marshal(m)
		if err != nil {
			return err
		}
		// jsoniter only indents with spaces.
		var out bytes.Buffer
		if err := json.Indent(&out, b, "", "\t"); err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(dir, name), out.Bytes(), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Dir(path), filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
