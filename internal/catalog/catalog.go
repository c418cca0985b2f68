package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// store is the shared state behind every view of one catalog.
type store struct {
	events  map[string]*Event
	aliases map[string]string // alias -> canonical name
	order   []string
	removed map[string]struct{}
	seq     uint64
	loader  Loader
}

// Catalog is a view onto the shared event store. The value returned by New
// is never revoked; views handed out by Grant are.
type Catalog struct {
	st    *store
	grant *grant
}

type grant struct {
	holder  string
	revoked bool
}

func New() *Catalog {
	return &Catalog{st: &store{
		events:  map[string]*Event{},
		aliases: map[string]string{},
		removed: map[string]struct{}{},
	}}
}

// SetLoader installs the journal-backed loader used to rehydrate events.
func (c *Catalog) SetLoader(l Loader) { c.st.loader = l }

// Grant returns a view of the catalog for holder. Mutations through the view
// fail with ErrRevoked once Revoke has been called on it.
func (c *Catalog) Grant(holder string) *Catalog {
	return &Catalog{st: c.st, grant: &grant{holder: holder}}
}

// Revoke ends the view's grant. It is a no-op on the root catalog.
func (c *Catalog) Revoke() {
	if c.grant != nil {
		c.grant.revoked = true
	}
}

func (c *Catalog) writable() error {
	if c.grant != nil && c.grant.revoked {
		return fmt.Errorf("%w (holder %q)", ErrRevoked, c.grant.holder)
	}
	return nil
}

// AddEvent returns the canonical name for name, creating a new event when the
// name has never been seen in memory or in the journal.
func (c *Catalog) AddEvent(name string) (string, error) {
	if err := c.writable(); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if canon, ok := c.st.aliases[name]; ok {
		if _, err := c.get(canon); err != nil {
			return "", err
		}
		return c.st.aliases[name], nil
	}
	if canon, ok, err := c.restoreByAlias(name); err != nil {
		return "", err
	} else if ok {
		return canon, nil
	}

	c.st.seq++
	ev := newEvent(name, c.st.seq)
	c.st.events[name] = ev
	c.st.aliases[name] = name
	c.st.order = append(c.st.order, name)
	delete(c.st.removed, name)
	return name, nil
}

// Resolve returns the canonical name for an alias known in memory.
func (c *Catalog) Resolve(alias string) (string, bool) {
	canon, ok := c.st.aliases[strings.TrimSpace(alias)]
	return canon, ok
}

// Event returns the in-memory event for a canonical name or alias.
// The event may be collapsed; use AddEvent to rehydrate it.
func (c *Catalog) Event(name string) (*Event, bool) {
	canon, ok := c.Resolve(name)
	if !ok {
		return nil, false
	}
	ev, ok := c.st.events[canon]
	return ev, ok
}

// Names returns canonical names in first-seen order.
func (c *Catalog) Names() []string { return append([]string(nil), c.st.order...) }

// Count returns the number of events in memory and how many of them are stubs.
func (c *Catalog) Count() (events, stubs int) {
	for _, ev := range c.st.events {
		events++
		if !ev.HasData() {
			stubs++
		}
	}
	return events, stubs
}

// Snapshot returns the persistable record of a loaded event.
func (c *Catalog) Snapshot(name string) (Record, error) {
	ev, err := c.get(name)
	if err != nil {
		return Record{}, err
	}
	return ev.record(), nil
}

// Collapse drops a journaled event's data, keeping its identity in memory.
func (c *Catalog) Collapse(name string) {
	if ev, ok := c.Event(name); ok && !ev.collapsed {
		ev.collapse()
	}
}

// MarkClean records that the event's current state has been journaled.
func (c *Catalog) MarkClean(name string) {
	if ev, ok := c.Event(name); ok {
		ev.dirty = false
	}
}

// Forget removes an event and its aliases from memory entirely. The journal
// copy is untouched, so a later AddEvent rehydrates it through the Loader.
func (c *Catalog) Forget(name string) {
	ev, ok := c.Event(name)
	if !ok {
		return
	}
	for _, a := range ev.aliases {
		if c.st.aliases[a.Value] == ev.name {
			delete(c.st.aliases, a.Value)
		}
	}
	delete(c.st.events, ev.name)
	c.st.order = removeName(c.st.order, ev.name)
}

// TakeRemoved returns and clears the canonical names merged away since the
// last call; their journal records must be deleted.
func (c *Catalog) TakeRemoved() []string {
	if len(c.st.removed) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.st.removed))
	for name := range c.st.removed {
		out = append(out, name)
	}
	c.st.removed = map[string]struct{}{}
	sort.Strings(out)
	return out
}

// Merge unifies two events. The one seen first stays canonical; the returned
// name is the survivor.
func (c *Catalog) Merge(a, b string) (string, error) {
	if err := c.writable(); err != nil {
		return "", err
	}
	ea, err := c.get(a)
	if err != nil {
		return "", err
	}
	eb, err := c.get(b)
	if err != nil {
		return "", err
	}
	if ea == eb {
		return ea.name, nil
	}
	return c.unify(ea, eb)
}

// get resolves name to a loaded event, rehydrating collapsed events.
func (c *Catalog) get(name string) (*Event, error) {
	name = strings.TrimSpace(name)
	canon, ok := c.st.aliases[name]
	if !ok {
		return nil, unknownEvent(name)
	}
	ev, ok := c.st.events[canon]
	if !ok {
		return nil, unknownEvent(name)
	}
	if ev.collapsed {
		if err := c.rehydrate(ev); err != nil {
			return nil, err
		}
		// Rehydration may have unified ev into an older event.
		if ev, ok = c.st.events[c.st.aliases[name]]; !ok {
			return nil, unknownEvent(name)
		}
	}
	return ev, nil
}

func (c *Catalog) rehydrate(ev *Event) error {
	if c.st.loader == nil {
		ev.collapsed = false
		return nil
	}
	rec, ok, err := c.st.loader.LoadEvent(ev.name)
	if err != nil {
		return fmt.Errorf("rehydrate %s: %w", ev.name, err)
	}
	ev.collapsed = false
	if ok {
		ev.load(rec)
		return c.indexAliases(ev)
	}
	return nil
}

// restoreByAlias brings a journaled event that is not in memory back into the
// catalog when name is one of its aliases.
func (c *Catalog) restoreByAlias(name string) (string, bool, error) {
	l := c.st.loader
	if l == nil {
		return "", false, nil
	}
	canon, ok, err := l.ResolveAlias(name)
	if err != nil {
		return "", false, fmt.Errorf("resolve alias %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	if _, inMem := c.st.events[canon]; inMem {
		// The journal knows an alias memory has not seen yet.
		c.st.aliases[name] = canon
		ev, err := c.get(canon)
		if err != nil {
			return "", false, err
		}
		return ev.name, true, nil
	}
	rec, ok, err := l.LoadEvent(canon)
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", canon, err)
	}
	if !ok {
		return "", false, nil
	}
	c.st.seq++
	ev := &Event{name: canon, aliases: []QuantityValue{{Value: canon}}, seq: c.st.seq, journaled: true}
	ev.load(rec)
	c.st.events[canon] = ev
	c.st.order = append(c.st.order, canon)
	delete(c.st.removed, canon)
	c.st.aliases[canon] = canon
	if err := c.indexAliases(ev); err != nil {
		return "", false, err
	}
	if _, ok := c.st.aliases[name]; !ok {
		c.st.aliases[name] = ev.name
	}
	return c.st.aliases[name], true, nil
}

// indexAliases points every alias of ev at it, unifying with any other event
// that already claimed one of them.
func (c *Catalog) indexAliases(ev *Event) error {
	for _, a := range append([]QuantityValue(nil), ev.aliases...) {
		owner, ok := c.st.aliases[a.Value]
		if !ok {
			c.st.aliases[a.Value] = ev.name
			continue
		}
		if owner == ev.name {
			continue
		}
		other, ok := c.st.events[owner]
		if !ok {
			c.st.aliases[a.Value] = ev.name
			continue
		}
		if other.collapsed {
			if err := c.rehydrate(other); err != nil {
				return err
			}
		}
		winner, err := c.unify(other, ev)
		if err != nil {
			return err
		}
		ev = c.st.events[winner]
	}
	return nil
}

// unify folds the later-seen event into the earlier-seen one. Events from
// earlier runs count as seen before anything created in this run.
func (c *Catalog) unify(a, b *Event) (string, error) {
	winner, loser := a, b
	if loser.precedes(winner) {
		winner, loser = loser, winner
	}

	remap := make(map[string]string, len(loser.sources))
	for _, src := range loser.sources {
		id := winner.addSource(SourceSpec{
			Name:      src.Name,
			Bibcode:   src.Bibcode,
			URL:       src.URL,
			Secondary: src.Secondary,
		})
		remap[src.ID] = id
	}
	mapIDs := func(ids []string) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if n, ok := remap[id]; ok {
				out = append(out, n)
			}
		}
		return UniqCDL(out)
	}

	for _, al := range loser.aliases {
		winner.addAlias(al.Value, mapIDs(al.Sources))
		c.st.aliases[al.Value] = winner.name
	}
	for _, q := range loser.QuantityNames() {
		for _, v := range loser.quantities[q] {
			winner.addQuantity(q, v.Value, mapIDs(v.Sources), v.Derived)
		}
	}
	for _, p := range loser.photometry {
		p.Sources = mapIDs(p.Sources)
		winner.photometry = append(winner.photometry, p)
	}
	for _, s := range loser.spectra {
		s.Sources = mapIDs(s.Sources)
		winner.spectra = append(winner.spectra, s)
	}
	winner.dirty = true

	delete(c.st.events, loser.name)
	c.st.order = removeName(c.st.order, loser.name)
	c.st.removed[loser.name] = struct{}{}
	return winner.name, nil
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i:i], names[i+1:]...)
		}
	}
	return names
}
