package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AddAlias registers alias for event and returns the event's canonical name.
// If the alias already belongs to another event, in memory or in the journal,
// the two events are unified and the first-seen name stays canonical.
func (c *Catalog) AddAlias(event, alias string, sourceIDs []string) (string, error) {
	if err := c.writable(); err != nil {
		return "", err
	}
	ev, err := c.get(event)
	if err != nil {
		return "", err
	}
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ev.name, nil
	}
	if err := ev.checkSources(sourceIDs); err != nil {
		return "", err
	}

	owner, known := c.st.aliases[alias]
	if !known {
		if canon, ok, err := c.restoreByAlias(alias); err != nil {
			return "", err
		} else if ok {
			owner, known = canon, true
		}
		// Restoring may have unified ev away.
		if ev, err = c.get(event); err != nil {
			return "", err
		}
	}
	if known && owner != ev.name {
		other, err := c.get(owner)
		if err != nil {
			return "", err
		}
		if other != ev {
			winner, err := c.unify(other, ev)
			if err != nil {
				return "", err
			}
			// Source ids were issued against ev; translate them if ev lost.
			if winner != ev.name {
				sourceIDs = translateSources(ev, c.st.events[winner], sourceIDs)
			}
			ev = c.st.events[winner]
		}
	}

	if ev.addAlias(alias, sourceIDs) {
		ev.dirty = true
	}
	c.st.aliases[alias] = ev.name
	return ev.name, nil
}

// AddSource returns the id of the source matching spec, appending a new
// source when none matches. Bibcode is the identity when present, otherwise
// the (name, url) pair is.
func (c *Catalog) AddSource(event string, spec SourceSpec) (string, error) {
	if err := c.writable(); err != nil {
		return "", err
	}
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Bibcode = strings.TrimSpace(spec.Bibcode)
	spec.URL = strings.TrimSpace(spec.URL)
	if spec.Name == "" && spec.Bibcode == "" {
		return "", &MissingIdentityError{Kind: "source", Event: event, Field: "name"}
	}
	ev, err := c.get(event)
	if err != nil {
		return "", err
	}
	before := len(ev.sources)
	id := ev.addSource(spec)
	if len(ev.sources) != before {
		ev.dirty = true
	}
	return id, nil
}

// AddQuantity records value for quantity. An existing (quantity, value) pair
// gains the new source ids; otherwise a new value is appended. Empty values
// are ignored.
func (c *Catalog) AddQuantity(event, quantity, value string, sourceIDs []string) error {
	if err := c.writable(); err != nil {
		return err
	}
	quantity = strings.TrimSpace(quantity)
	if quantity == "" {
		return fmt.Errorf("catalog: empty quantity name for %s", event)
	}
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if quantity == QuantityAlias {
		_, err := c.AddAlias(event, value, sourceIDs)
		return err
	}
	ev, err := c.get(event)
	if err != nil {
		return err
	}
	if err := ev.checkSources(sourceIDs); err != nil {
		return err
	}
	if ev.addQuantity(quantity, value, sourceIDs, false) {
		ev.dirty = true
	}
	return nil
}

// SetDerived replaces every derived value of quantity with value. Values
// reported by sources are kept. An empty value only clears derived values.
func (c *Catalog) SetDerived(event, quantity, value string, sourceIDs []string) error {
	if err := c.writable(); err != nil {
		return err
	}
	ev, err := c.get(event)
	if err != nil {
		return err
	}
	if err := ev.checkSources(sourceIDs); err != nil {
		return err
	}
	old := cloneValues(ev.quantities[quantity])
	kept := make([]QuantityValue, 0, len(old)+1)
	for _, v := range ev.quantities[quantity] {
		if !v.Derived {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(ev.quantities, quantity)
	} else {
		ev.quantities[quantity] = kept
	}
	if strings.TrimSpace(value) != "" {
		ev.addQuantity(quantity, value, sourceIDs, true)
	}
	if !sameValues(old, ev.quantities[quantity]) {
		ev.dirty = true
	}
	return nil
}

// AddPhotometry appends a photometric observation. Filename and RecordID are
// required; without them nothing is changed.
func (c *Catalog) AddPhotometry(event string, p PhotometryRecord) error {
	if err := c.writable(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Filename) == "" {
		return &MissingIdentityError{Kind: "photometry", Event: event, Field: "filename"}
	}
	if strings.TrimSpace(p.RecordID) == "" {
		return &MissingIdentityError{Kind: "photometry", Event: event, Field: "id"}
	}
	ev, err := c.get(event)
	if err != nil {
		return err
	}
	if err := ev.checkSources(p.Sources); err != nil {
		return err
	}
	p.Sources = UniqCDL(p.Sources)
	ev.photometry = append(ev.photometry, p)
	ev.dirty = true
	return nil
}

// AddSpectrum appends a spectrum. Filename and RecordID are required; without
// them nothing is changed.
func (c *Catalog) AddSpectrum(event string, s SpectrumRecord) error {
	if err := c.writable(); err != nil {
		return err
	}
	if strings.TrimSpace(s.Filename) == "" {
		return &MissingIdentityError{Kind: "spectrum", Event: event, Field: "filename"}
	}
	if strings.TrimSpace(s.RecordID) == "" {
		return &MissingIdentityError{Kind: "spectrum", Event: event, Field: "id"}
	}
	ev, err := c.get(event)
	if err != nil {
		return err
	}
	if err := ev.checkSources(s.Sources); err != nil {
		return err
	}
	s.Sources = UniqCDL(s.Sources)
	ev.spectra = append(ev.spectra, s)
	ev.dirty = true
	return nil
}

// Restore merges a complete record into the catalog as if every part of it
// had been added through the catalog operations, and returns the canonical
// name it ended up under. Source ids in the record are re-issued.
func (c *Catalog) Restore(r Record) (string, error) {
	name, err := c.AddEvent(r.Name)
	if err != nil {
		return "", err
	}
	for _, src := range r.Sources {
		if _, err := c.AddSource(name, SourceSpec{
			Name:      src.Name,
			Bibcode:   src.Bibcode,
			URL:       src.URL,
			Secondary: src.Secondary,
		}); err != nil {
			return "", err
		}
	}
	for _, a := range r.Aliases {
		if name, err = c.AddAlias(name, a.Value, c.reissue(name, r.Sources, a.Sources)); err != nil {
			return "", err
		}
	}
	qs := make([]string, 0, len(r.Quantities))
	for q := range r.Quantities {
		qs = append(qs, q)
	}
	sort.Strings(qs)
	for _, q := range qs {
		for _, v := range r.Quantities[q] {
			srcs := c.reissue(name, r.Sources, v.Sources)
			if v.Derived {
				err = c.SetDerived(name, q, v.Value, srcs)
			} else {
				err = c.AddQuantity(name, q, v.Value, srcs)
			}
			if err != nil {
				return "", err
			}
		}
	}
	for _, p := range r.Photometry {
		p.Sources = c.reissue(name, r.Sources, p.Sources)
		if err := c.AddPhotometry(name, p); err != nil {
			return "", err
		}
	}
	for _, s := range r.Spectra {
		s.Sources = c.reissue(name, r.Sources, s.Sources)
		if err := c.AddSpectrum(name, s); err != nil {
			return "", err
		}
	}
	return name, nil
}

// Rewrite replaces every value of quantity with fn(value). Values that become
// equal are merged and their source ids unioned; values rewritten to "" are
// dropped. An fn error leaves the event unchanged.
func (c *Catalog) Rewrite(event, quantity string, fn func(value string) (string, error)) error {
	if err := c.writable(); err != nil {
		return err
	}
	ev, err := c.get(event)
	if err != nil {
		return err
	}
	old := ev.quantities[quantity]
	if len(old) == 0 {
		return nil
	}
	next := &Event{quantities: map[string][]QuantityValue{}}
	for _, v := range old {
		nv, err := fn(v.Value)
		if err != nil {
			return fmt.Errorf("%s %s %q: %w", ev.name, quantity, v.Value, err)
		}
		if strings.TrimSpace(nv) == "" {
			continue
		}
		next.addQuantity(quantity, nv, v.Sources, v.Derived)
	}
	if sameValues(old, next.quantities[quantity]) {
		return nil
	}
	if vals := next.quantities[quantity]; len(vals) > 0 {
		ev.quantities[quantity] = vals
	} else {
		delete(ev.quantities, quantity)
	}
	ev.dirty = true
	return nil
}

// reissue maps record-local source ids onto the ids event uses for the same
// sources, adding any source event does not have yet.
func (c *Catalog) reissue(event string, sources []Source, ids []string) []string {
	ev, err := c.get(event)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		for _, src := range sources {
			if src.ID != id {
				continue
			}
			before := len(ev.sources)
			out = append(out, ev.addSource(SourceSpec{
				Name:      strings.TrimSpace(src.Name),
				Bibcode:   strings.TrimSpace(src.Bibcode),
				URL:       strings.TrimSpace(src.URL),
				Secondary: src.Secondary,
			}))
			if len(ev.sources) != before {
				ev.dirty = true
			}
			break
		}
	}
	return UniqCDL(out)
}

// ---- event-level helpers (no dirty bookkeeping) ----

func (e *Event) addSource(spec SourceSpec) string {
	if spec.Name == "" {
		spec.Name = spec.Bibcode
	}
	for _, s := range e.sources {
		if spec.Bibcode != "" {
			if s.Bibcode == spec.Bibcode {
				return s.ID
			}
			continue
		}
		if s.Name == spec.Name && s.URL == spec.URL {
			return s.ID
		}
	}
	id := strconv.Itoa(len(e.sources) + 1)
	e.sources = append(e.sources, Source{
		ID:        id,
		Name:      spec.Name,
		Bibcode:   spec.Bibcode,
		URL:       spec.URL,
		Secondary: spec.Secondary,
	})
	return id
}

// addAlias reports whether anything changed.
func (e *Event) addAlias(alias string, ids []string) bool {
	if i := e.aliasIndex(alias); i >= 0 {
		merged := UniqCDL(append(e.aliases[i].Sources, ids...))
		changed := len(merged) != len(e.aliases[i].Sources)
		e.aliases[i].Sources = merged
		return changed
	}
	e.aliases = append(e.aliases, QuantityValue{Value: alias, Sources: UniqCDL(ids)})
	return true
}

// addQuantity reports whether anything changed.
func (e *Event) addQuantity(quantity, value string, ids []string, derived bool) bool {
	if v := e.find(quantity, value); v != nil {
		merged := UniqCDL(append(v.Sources, ids...))
		changed := len(merged) != len(v.Sources)
		v.Sources = merged
		return changed
	}
	if e.quantities == nil {
		e.quantities = map[string][]QuantityValue{}
	}
	e.quantities[quantity] = append(e.quantities[quantity], QuantityValue{
		Value:   value,
		Sources: UniqCDL(ids),
		Derived: derived,
	})
	return true
}

func (e *Event) find(quantity, value string) *QuantityValue {
	vals := e.quantities[quantity]
	for i := range vals {
		if vals[i].Value == value {
			return &vals[i]
		}
	}
	return nil
}

func (e *Event) checkSources(ids []string) error {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !e.hasSource(id) {
			return fmt.Errorf("%w %q on %s", ErrUnknownSource, id, e.name)
		}
	}
	return nil
}

func translateSources(from, to *Event, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		src, ok := from.Source(id)
		if !ok {
			continue
		}
		// Merging already copied every source, so this only looks the id up.
		out = append(out, to.addSource(SourceSpec{
			Name:      src.Name,
			Bibcode:   src.Bibcode,
			URL:       src.URL,
			Secondary: src.Secondary,
		}))
	}
	return UniqCDL(out)
}

func sameValues(a, b []QuantityValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Value != b[i].Value || a[i].Derived != b[i].Derived || JoinCDL(a[i].Sources) != JoinCDL(b[i].Sources) {
			return false
		}
	}
	return true
}
