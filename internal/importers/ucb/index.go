package ucb

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"eventcat/internal/catalog"
	"eventcat/internal/fetch"
)

const (
	baseURL = "http://heracles.astro.berkeley.edu/sndb/"

	secondaryName    = "UCB Filippenko Group's Supernova Database (SNDB)"
	secondaryURL     = baseURL + "info"
	secondaryBibcode = "2012MNRAS.425.1789S"
)

// Source is the download side of the importers.
type Source interface {
	Cached(ctx context.Context, url, rel string, archive bool) (fetch.Result, error)
}

var indexJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// text accepts a JSON string, number or null. Numbers keep their literal
// spelling so "20110825.23" is not rounded.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*t = text(s)
	default:
		*t = text(b)
	}
	return nil
}

func (t text) String() string { return strings.TrimSpace(string(t)) }

// entry is the metadata shared by photometry and spectrum index rows.
type entry struct {
	ObjName   text `json:"ObjName"`
	Reference text `json:"Reference"`
	Type      text `json:"Type"`
	DiscDate  text `json:"DiscDate"`
	HostName  text `json:"HostName"`
	Filename  text `json:"Filename"`
}

func decodeIndex[T any](data []byte, name func(T) string) ([]T, error) {
	var rows []T
	if err := indexJSON.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return name(rows[i]) < name(rows[j]) })
	return rows, nil
}

// ingestMeta adds the event named by e with its descriptive quantities and
// returns the canonical name and the source ids to attach to measurements.
func ingestMeta(cat *catalog.Catalog, e entry) (string, []string, error) {
	oldname := e.ObjName.String()
	name, err := cat.AddEvent(oldname)
	if err != nil {
		return "", nil, err
	}
	sec, err := cat.AddSource(name, catalog.SourceSpec{
		Name:      secondaryName,
		URL:       secondaryURL,
		Bibcode:   secondaryBibcode,
		Secondary: true,
	})
	if err != nil {
		return "", nil, err
	}
	if name, err = cat.AddAlias(name, oldname, []string{sec}); err != nil {
		return "", nil, err
	}
	sources := []string{sec}
	if ref := e.Reference.String(); ref != "" {
		id, err := cat.AddSource(name, catalog.SourceSpec{Bibcode: ref})
		if err != nil {
			return "", nil, err
		}
		sources = append(sources, id)
	}
	sources = catalog.UniqCDL(sources)

	if ct := e.Type.String(); ct != "" && ct != "NoMatch" {
		for _, t := range strings.Split(ct, ",") {
			t = strings.TrimSpace(strings.ReplaceAll(t, "-norm", ""))
			if err := cat.AddQuantity(name, "claimedtype", t, sources); err != nil {
				return "", nil, err
			}
		}
	}
	if d := e.DiscDate.String(); d != "" {
		if err := cat.AddQuantity(name, "discoverdate", strings.ReplaceAll(d, "-", "/"), sources); err != nil {
			return "", nil, err
		}
	}
	if h := e.HostName.String(); h != "" {
		if un, err := url.PathUnescape(h); err == nil {
			h = un
		}
		if err := cat.AddQuantity(name, "host", strings.ReplaceAll(h, "*", ""), sources); err != nil {
			return "", nil, err
		}
	}
	return name, sources, nil
}
