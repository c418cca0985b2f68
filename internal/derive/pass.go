package derive

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"eventcat/internal/catalog"
	"eventcat/internal/journal"
	logx "eventcat/pkg/logx"
)

// Tables are the side tables accumulated across the pass.
type Tables struct {
	// Extinctions maps "ra,dec" to E(B-V).
	Extinctions map[string]string
	// BibAuthors maps a bibcode to its author string.
	BibAuthors map[string]string
}

func newTables() Tables {
	return Tables{Extinctions: map[string]string{}, BibAuthors: map[string]string{}}
}

type Config struct {
	// MaxFailureRatio escalates the pass to an error when the share of
	// failed events exceeds it. 0 never escalates.
	MaxFailureRatio float64
	// ProgressEvery throttles progress lines. 0 disables them.
	ProgressEvery time.Duration
	// QueryLimit stops after that many events; 0 is unbounded.
	QueryLimit int
}

// FailureBudgetError reports a pass where too many events failed.
type FailureBudgetError struct {
	Failed  int
	Visited int
	Max     float64
}

func (e *FailureBudgetError) Error() string {
	return fmt.Sprintf("derive: %d of %d events failed (max ratio %.2f)", e.Failed, e.Visited, e.Max)
}

// Summary counts what the last Run did. Events and Stubs count the loaded
// events, taken before each one is released from memory.
type Summary struct {
	Visited   int
	Failed    int
	Rewritten int
	Events    int
	Stubs     int
}

type Pass struct {
	cfg     Config
	journal *journal.Journal
	rules   []Rule
	log     logx.Logger
	summary Summary
}

// New returns a pass applying rules, or DefaultRules when none are given.
func New(j *journal.Journal, cfg Config, log logx.Logger, rules ...Rule) *Pass {
	if log.IsZero() {
		log = logx.Nop()
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Pass{cfg: cfg, journal: j, rules: rules, log: log.With(logx.String("comp", "derive"))}
}

// Summary returns the counters of the last Run.
func (p *Pass) Summary() Summary { return p.summary }

// Run visits every journaled event in name order. A failing event is logged
// and counted; the pass moves on. Journal errors abort it.
//
// The returned tables are complete even when the error is a
// *FailureBudgetError.
func (p *Pass) Run(ctx context.Context, cat *catalog.Catalog) (Tables, error) {
	p.summary = Summary{}
	tables := newTables()
	names, err := p.journal.Names(ctx)
	if err != nil {
		return tables, fmt.Errorf("derive: list events: %w", err)
	}

	var progress *rate.Limiter
	if p.cfg.ProgressEvery > 0 {
		progress = rate.NewLimiter(rate.Every(p.cfg.ProgressEvery), 1)
		progress.Allow()
	}
	start := time.Now()

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return tables, err
		}
		if p.cfg.QueryLimit > 0 && i >= p.cfg.QueryLimit {
			break
		}
		p.summary.Visited++
		canon, err := p.visit(cat, name, &tables)
		if err != nil {
			p.summary.Failed++
			p.log.Warn("derive failed", logx.String("event", name), logx.Err(err))
		}
		if canon == "" {
			continue
		}
		if ev, ok := cat.Event(canon); ok {
			p.summary.Events++
			if !ev.HasData() {
				p.summary.Stubs++
			}
		}
		wrote, err := p.journal.FlushEvent(ctx, cat, canon)
		if err != nil {
			return tables, err
		}
		if wrote {
			p.summary.Rewritten++
		}
		cat.Forget(canon)

		if progress != nil && progress.Allow() {
			p.log.Info("derive progress",
				logx.String("done", humanize.Comma(int64(i+1))),
				logx.String("total", humanize.Comma(int64(len(names)))),
			)
		}
	}

	p.log.Info("derive finished",
		logx.Int("visited", p.summary.Visited),
		logx.Int("failed", p.summary.Failed),
		logx.Int("rewritten", p.summary.Rewritten),
		logx.Int("stubs", p.summary.Stubs),
		logx.Int("bibauthors", len(tables.BibAuthors)),
		logx.Int("extinctions", len(tables.Extinctions)),
		logx.Duration("took", time.Since(start)),
	)

	if p.cfg.MaxFailureRatio > 0 && p.summary.Visited > 0 &&
		float64(p.summary.Failed)/float64(p.summary.Visited) > p.cfg.MaxFailureRatio {
		return tables, &FailureBudgetError{Failed: p.summary.Failed, Visited: p.summary.Visited, Max: p.cfg.MaxFailureRatio}
	}
	return tables, nil
}

// visit loads one event and applies the rule chain, stopping at the first
// failing rule. The canonical name is returned whenever the event was loaded
// so the caller can journal what was applied.
func (p *Pass) visit(cat *catalog.Catalog, name string, t *Tables) (string, error) {
	canon, err := cat.AddEvent(name)
	if err != nil {
		return "", err
	}
	for _, r := range p.rules {
		if err := r.Apply(cat, canon, t); err != nil {
			return canon, fmt.Errorf("%s: %w", r.Name, err)
		}
	}
	return canon, nil
}
