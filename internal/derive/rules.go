package derive

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"eventcat/internal/catalog"
)

// Rule sanitizes or derives something for one event.
type Rule struct {
	Name  string
	Apply func(cat *catalog.Catalog, event string, t *Tables) error
}

// DefaultRules returns the rule chain in the order it is applied.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "alias", Apply: aliasHygiene},
		{Name: "trim", Apply: trimValues},
		{Name: "claimedtype", Apply: normalizeClaimedType},
		{Name: "discoverdate", Apply: normalizeDiscoverDate},
		{Name: "peak", Apply: derivePeak},
		{Name: "extinction", Apply: collectExtinction},
		{Name: "bibauthor", Apply: collectBibAuthors},
	}
}

func aliasHygiene(cat *catalog.Catalog, event string, _ *Tables) error {
	_, err := cat.AddAlias(event, event, nil)
	return err
}

func trimValues(cat *catalog.Catalog, event string, _ *Tables) error {
	ev, ok := cat.Event(event)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownEvent, event)
	}
	for _, q := range ev.QuantityNames() {
		if err := cat.Rewrite(event, q, func(v string) (string, error) {
			return strings.Join(strings.Fields(v), " "), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func normalizeClaimedType(cat *catalog.Catalog, event string, _ *Tables) error {
	return cat.Rewrite(event, "claimedtype", func(v string) (string, error) {
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "-norm"))
		if len(v) > 3 && strings.EqualFold(v[:3], "SN ") {
			v = strings.TrimSpace(v[3:])
		}
		if strings.EqualFold(v, "NoMatch") {
			return "", nil
		}
		return v, nil
	})
}

// normalizeDate turns "2011-8-24", "2011 08 24" or "2011/08/24.5" into
// "2011/08/24". Year-only and year/month dates are kept at their precision.
func normalizeDate(v string) (string, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(v), func(r rune) bool {
		return r == '-' || r == '/' || r == ' '
	})
	if len(parts) == 0 || len(parts) > 3 {
		return "", fmt.Errorf("unrecognized date")
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1000 || year > 9999 {
		return "", fmt.Errorf("bad year %q", parts[0])
	}
	out := fmt.Sprintf("%04d", year)
	limits := []int{12, 31}
	for i, p := range parts[1:] {
		if dot := strings.IndexByte(p, '.'); dot >= 0 {
			p = p[:dot]
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > limits[i] {
			return "", fmt.Errorf("bad date field %q", p)
		}
		out += fmt.Sprintf("/%02d", n)
	}
	return out, nil
}

func normalizeDiscoverDate(cat *catalog.Catalog, event string, _ *Tables) error {
	return cat.Rewrite(event, "discoverdate", normalizeDate)
}

var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// mjdToDate renders a Modified Julian Date as YYYY/MM/DD.
func mjdToDate(mjd float64) string {
	days := math.Floor(mjd)
	return mjdEpoch.AddDate(0, 0, int(days)).Format("2006/01/02")
}

// derivePeak records the brightest photometric point as maxappmag, maxdate
// and maxband. Points with an unparseable time or magnitude are ignored.
func derivePeak(cat *catalog.Catalog, event string, _ *Tables) error {
	ev, ok := cat.Event(event)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownEvent, event)
	}
	var (
		best    *catalog.PhotometryRecord
		bestMag float64
		bestMJD float64
	)
	phot := ev.Photometry()
	for i := range phot {
		p := &phot[i]
		if p.TimeUnit != "" && p.TimeUnit != "MJD" {
			continue
		}
		mag, err := strconv.ParseFloat(strings.TrimSpace(p.Magnitude), 64)
		if err != nil {
			continue
		}
		mjd, err := strconv.ParseFloat(strings.TrimSpace(p.Time), 64)
		if err != nil {
			continue
		}
		if best == nil || mag < bestMag {
			best, bestMag, bestMJD = p, mag, mjd
		}
	}
	if best == nil {
		return nil
	}
	if err := cat.SetDerived(event, "maxappmag", best.Magnitude, best.Sources); err != nil {
		return err
	}
	if err := cat.SetDerived(event, "maxdate", mjdToDate(bestMJD), best.Sources); err != nil {
		return err
	}
	return cat.SetDerived(event, "maxband", best.Band, best.Sources)
}

func first(ev *catalog.Event, q string) (catalog.QuantityValue, bool) {
	vals := ev.Quantity(q)
	if len(vals) == 0 {
		return catalog.QuantityValue{}, false
	}
	return vals[0], true
}

// collectExtinction keys the event's E(B-V) by its sky position. An event at
// a known position without its own value gets the tabulated one.
func collectExtinction(cat *catalog.Catalog, event string, t *Tables) error {
	ev, ok := cat.Event(event)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownEvent, event)
	}
	ra, okRA := first(ev, "ra")
	dec, okDec := first(ev, "dec")
	if !okRA || !okDec {
		return nil
	}
	key := ra.Value + "," + dec.Value
	if ebv, ok := first(ev, "ebv"); ok {
		if _, seen := t.Extinctions[key]; !seen {
			t.Extinctions[key] = ebv.Value
		}
		return nil
	}
	if v, ok := t.Extinctions[key]; ok {
		return cat.SetDerived(event, "ebv", v, nil)
	}
	return nil
}

// collectBibAuthors maps each bibcode to the first descriptive source name
// seen for it.
func collectBibAuthors(cat *catalog.Catalog, event string, t *Tables) error {
	ev, ok := cat.Event(event)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownEvent, event)
	}
	for _, s := range ev.Sources() {
		if s.Bibcode == "" || s.Name == "" || s.Name == s.Bibcode {
			continue
		}
		if _, seen := t.BibAuthors[s.Bibcode]; !seen {
			t.BibAuthors[s.Bibcode] = s.Name
		}
	}
	return nil
}
