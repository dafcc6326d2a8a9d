package graph

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/identity"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

func newTestEngine() *Engine {
	return NewEngine(logger.NewNop(), nil)
}

func apply(t *testing.T, e *Engine, s Store, recs ...domain.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := e.Apply(context.Background(), s, rec); err != nil {
			t.Fatalf("Apply(%s): %v", rec.Kind(), err)
		}
	}
}

func samplePolitician() *domain.PoliticianRecord {
	return &domain.PoliticianRecord{
		PeriodNumber: "20",
		FullName:     "A B",
		Firstname:    "A",
		Lastname:     "B",
		BirthYear:    "1970",
		Party:        "GRÜNE",
		State:        "Berlin",
		Constituency: "Berlin-Mitte",
		SourcePage:   "https://d/list",
		DetailPage:   "https://d/a",
	}
}

func TestPeriodThenPoliticianScenario(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	apply(t, e, s,
		&domain.PeriodRecord{Number: "20", Name: "20. Wahlperiode"},
		&domain.PoliticianRecord{PeriodNumber: "20", FullName: "A B", DetailPage: "https://d/a", SourcePage: "https://d/list"},
	)

	if got := s.Count(LabelDomain); got != 1 {
		t.Fatalf("domains: want=1 got=%d", got)
	}
	if _, ok := s.Node(LabelDomain, "d"); !ok {
		t.Fatalf("domain d missing")
	}
	for _, u := range []string{"https://d/a", "https://d/list"} {
		if _, ok := s.Node(LabelPage, u); !ok {
			t.Fatalf("page %s missing", u)
		}
		if !s.HasEdge(NodeRef{LabelPage, u}, RelBelongsToDomain, NodeRef{LabelDomain, "d"}) {
			t.Fatalf("page %s not linked to domain", u)
		}
	}
	pol, ok := s.Node(LabelPolitician, "https://d/a")
	if !ok {
		t.Fatalf("politician missing")
	}
	if pol["full_name"] != "A B" {
		t.Fatalf("full_name: want=%q got=%v", "A B", pol["full_name"])
	}

	mid := identity.MandateID("20", "https://d/a")
	if _, ok := s.Node(LabelMandate, mid); !ok {
		t.Fatalf("mandate %s missing", mid)
	}
	polRef := NodeRef{LabelPolitician, "https://d/a"}
	period := NodeRef{LabelPeriod, "20"}
	mandate := NodeRef{LabelMandate, mid}
	checks := []struct {
		from NodeRef
		rel  RelType
		to   NodeRef
	}{
		{polRef, RelServedDuring, period},
		{polRef, RelHasMandate, mandate},
		{mandate, RelInPeriod, period},
		{polRef, RelHasSourcePage, NodeRef{LabelPage, "https://d/list"}},
		{polRef, RelHasDetailPage, NodeRef{LabelPage, "https://d/a"}},
		{NodeRef{LabelPage, "https://d/list"}, RelLinksToDetail, NodeRef{LabelPage, "https://d/a"}},
	}
	for _, c := range checks {
		if !s.HasEdge(c.from, c.rel, c.to) {
			t.Fatalf("missing edge %s -%s-> %s", c.from, c.rel, c.to)
		}
	}
	if s.Count(LabelParty)+s.Count(LabelState)+s.Count(LabelConstituency) != 0 {
		t.Fatalf("no descriptive nodes expected without party/state/constituency")
	}
}

func TestPoliticianIdempotent(t *testing.T) {
	once := NewMemStore()
	twice := NewMemStore()
	e := newTestEngine()
	period := &domain.PeriodRecord{Number: "20", Name: "20. Wahlperiode"}

	apply(t, e, once, period, samplePolitician())
	apply(t, e, twice, period, samplePolitician(), samplePolitician())

	if diff := cmp.Diff(once.Snapshot(), twice.Snapshot()); diff != "" {
		t.Fatalf("graph differs after re-ingest (-once +twice):\n%s", diff)
	}
}

func orderTestRecords() []domain.Record {
	return []domain.Record{
		&domain.DomainRecord{Domain: "d", Description: "Domain extracted from https://d/list"},
		&domain.PeriodRecord{Number: "20", Name: "20. Wahlperiode", StartDate: "2021-10-26", DetailPage: "https://d/list"},
		&domain.PageRecord{URL: "https://d/list", Title: "Liste", Domain: "d"},
		samplePolitician(),
		&domain.ContentRecord{SourcePage: "https://d/a", SectionHeader: "Leben", SectionText: "geboren"},
	}
}

// orderings returns every rotation of recs plus the full reversal.
func orderings(recs []domain.Record) [][]domain.Record {
	out := make([][]domain.Record, 0, len(recs)+1)
	for shift := 1; shift < len(recs); shift++ {
		out = append(out, append(append([]domain.Record{}, recs[shift:]...), recs[:shift]...))
	}
	rev := make([]domain.Record, len(recs))
	for i := range recs {
		rev[len(recs)-1-i] = recs[i]
	}
	return append(out, rev)
}

func TestOrderIndependentStructure(t *testing.T) {
	e := newTestEngine()
	recs := orderTestRecords()

	ref := NewMemStore()
	apply(t, e, ref, recs...)
	want := structure(ref.Snapshot())

	for i, order := range orderings(recs) {
		s := NewMemStore()
		apply(t, e, s, order...)
		// Edges that need a MATCH on a node from a later record are repaired by re-running
		// the same records, as a later pass would.
		apply(t, e, s, order...)
		if diff := cmp.Diff(want, structure(s.Snapshot())); diff != "" {
			t.Fatalf("order %d differs (-want +got):\n%s", i, diff)
		}
	}
}

func TestOrderIndependentValues(t *testing.T) {
	e := newTestEngine()
	recs := orderTestRecords()

	ref := NewMemStore()
	apply(t, e, ref, recs...)
	apply(t, e, ref, recs...)
	want := ref.Snapshot()
	if d, _ := ref.Node(LabelDomain, "d"); d["description"] == nil {
		t.Fatalf("domain description missing in reference graph")
	}

	for i, order := range orderings(recs) {
		s := NewMemStore()
		apply(t, e, s, order...)
		apply(t, e, s, order...)
		if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
			t.Fatalf("order %d differs (-want +got):\n%s", i, diff)
		}
	}
}

// structure drops property values, which may depend on which sighting came first when
// records disagree.
func structure(snap Snapshot) []string {
	out := make([]string, 0, len(snap.Nodes)+len(snap.Edges))
	for id := range snap.Nodes {
		out = append(out, "node "+id)
	}
	sort.Strings(out)
	return append(out, snap.Edges...)
}

func TestFillIfAbsentConvergesAcrossOrders(t *testing.T) {
	e := newTestEngine()
	bare := &domain.PoliticianRecord{FullName: "A B", SourcePage: "https://d/list", DetailPage: "https://d/a"}
	full := samplePolitician()

	ab := NewMemStore()
	apply(t, e, ab, bare, full)
	ba := NewMemStore()
	apply(t, e, ba, full, bare)

	if diff := cmp.Diff(ab.Snapshot(), ba.Snapshot()); diff != "" {
		t.Fatalf("fill-if-absent fields should converge (-ab +ba):\n%s", diff)
	}
}

func TestServedDuringWaitsForPeriod(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	apply(t, e, s, samplePolitician())

	pol := NodeRef{LabelPolitician, "https://d/a"}
	mandate := NodeRef{LabelMandate, identity.MandateID("20", "https://d/a")}
	if s.HasEdge(pol, RelServedDuring, NodeRef{LabelPeriod, "20"}) {
		t.Fatalf("SERVED_DURING must not attach before the period exists")
	}
	if !s.HasEdge(pol, RelHasMandate, mandate) {
		t.Fatalf("HAS_MANDATE should attach without the period")
	}

	apply(t, e, s, &domain.PeriodRecord{Number: "20", Name: "20. Wahlperiode"}, samplePolitician())
	if !s.HasEdge(pol, RelServedDuring, NodeRef{LabelPeriod, "20"}) {
		t.Fatalf("SERVED_DURING missing after re-run")
	}
	if !s.HasEdge(mandate, RelInPeriod, NodeRef{LabelPeriod, "20"}) {
		t.Fatalf("IN_PERIOD missing after re-run")
	}
}

func TestMandateSharedAcrossSightings(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	first := samplePolitician()
	first.Party = ""
	first.Constituency = ""
	second := samplePolitician()
	second.SourcePage = "https://d/other-list"
	second.Party = "Die Grünen"
	second.State = "Hamburg"

	apply(t, e, s, first, second)

	if got := s.Count(LabelMandate); got != 1 {
		t.Fatalf("mandates: want=1 got=%d", got)
	}
	m, _ := s.Node(LabelMandate, identity.MandateID("20", "https://d/a"))
	if m["political_party"] != identity.PartyGreens {
		t.Fatalf("party filled on second sighting: want=%q got=%v", identity.PartyGreens, m["political_party"])
	}
	if m["federate_state"] != "Berlin" {
		t.Fatalf("state keeps first value: want=%q got=%v", "Berlin", m["federate_state"])
	}
	if m["constituency"] != "Berlin-Mitte" {
		t.Fatalf("constituency filled: want=%q got=%v", "Berlin-Mitte", m["constituency"])
	}
	if _, ok := s.Node(LabelParty, identity.PartyGreens); !ok {
		t.Fatalf("party node keyed by canonical name missing")
	}
	if _, ok := s.Node(LabelParty, "Die Grünen"); ok {
		t.Fatalf("raw party label must not become a node")
	}
	if got := s.Count(LabelState); got != 2 {
		t.Fatalf("states: want=2 got=%d", got)
	}
}

func TestPageTitleFilledWhenAbsent(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	apply(t, e, s,
		&domain.PageRecord{URL: "https://d/u", Domain: "d"},
		&domain.PageRecord{URL: "https://d/u", Title: "T", HTML: "<html/>", Domain: "d"},
		&domain.PageRecord{URL: "https://d/u", Title: "Later", HTML: "<body/>", Domain: "d"},
	)
	pg, _ := s.Node(LabelPage, "https://d/u")
	if pg["title"] != "T" {
		t.Fatalf("title: want=%q got=%v", "T", pg["title"])
	}
	if pg["html"] != "<html/>" {
		t.Fatalf("html: want=%q got=%v", "<html/>", pg["html"])
	}
}

func TestDescriptiveFieldsFilledWhenAbsent(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	apply(t, e, s,
		&domain.PageRecord{URL: "https://d/list", Domain: "d"},
		&domain.DomainRecord{Domain: "d", Description: "late"},
		&domain.DomainRecord{Domain: "d", Description: "later"},
		&domain.PeriodRecord{Number: "1", Name: "1. Wahlperiode"},
		&domain.PeriodRecord{Number: "1", Name: "other", StartDate: "1949-09-07"},
	)
	d, _ := s.Node(LabelDomain, "d")
	if d["description"] != "late" {
		t.Fatalf("domain description: want=%q got=%v", "late", d["description"])
	}
	p, _ := s.Node(LabelPeriod, "1")
	if p["name"] != "1. Wahlperiode" {
		t.Fatalf("period name: want=%q got=%v", "1. Wahlperiode", p["name"])
	}
	if p["start_date"] != "1949-09-07" {
		t.Fatalf("period start_date: want=%q got=%v", "1949-09-07", p["start_date"])
	}
}

func TestSectionHeaderSetOnlyOnCreate(t *testing.T) {
	s := NewMemStore()
	err := s.ExecuteWrite(context.Background(), func(tx Tx) error {
		if err := tx.MergeNode(NodeWrite{Label: LabelContent, Key: "c", Props: map[string]any{"section_content": "x"}}); err != nil {
			return err
		}
		return tx.MergeNode(NodeWrite{Label: LabelContent, Key: "c", Props: map[string]any{"section_header": "Leben"}})
	})
	if err != nil {
		t.Fatalf("ExecuteWrite: %v", err)
	}
	c, _ := s.Node(LabelContent, "c")
	if _, ok := c["section_header"]; ok {
		t.Fatalf("section_header must not be set on a later sighting: got=%v", c["section_header"])
	}
}

func TestContentFirstWriteWinsAndLinks(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	apply(t, e, s,
		samplePolitician(),
		&domain.ContentRecord{SourcePage: "https://d/a", SectionHeader: "Leben", SectionText: "first"},
		&domain.ContentRecord{SourcePage: "https://d/a", SectionHeader: "Leben", SectionText: "second"},
	)
	cid := identity.ContentID("https://d/a", "Leben")
	c, ok := s.Node(LabelContent, cid)
	if !ok {
		t.Fatalf("content missing")
	}
	if c["section_content"] != "first" {
		t.Fatalf("section_content: want=%q got=%v", "first", c["section_content"])
	}
	if !s.HasEdge(NodeRef{LabelContent, cid}, RelHasSourcePage, NodeRef{LabelPage, "https://d/a"}) {
		t.Fatalf("content not linked to page")
	}
	if !s.HasEdge(NodeRef{LabelPolitician, "https://d/a"}, RelHasContent, NodeRef{LabelContent, cid}) {
		t.Fatalf("politician not linked to content")
	}
}

func TestContentExplicitOwner(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	apply(t, e, s,
		samplePolitician(),
		&domain.ContentRecord{
			SourcePage:           "https://mirror/a",
			SectionHeader:        "#",
			SectionText:          "intro",
			PoliticianDetailPage: "https://d/a",
		},
	)
	cid := identity.ContentID("https://mirror/a", "#")
	if !s.HasEdge(NodeRef{LabelPolitician, "https://d/a"}, RelHasContent, NodeRef{LabelContent, cid}) {
		t.Fatalf("explicit owner not linked")
	}
	if _, ok := s.Node(LabelDomain, "mirror"); !ok {
		t.Fatalf("source page domain missing")
	}
}

func TestMissingIdentityFailsLoudly(t *testing.T) {
	e := newTestEngine()
	cases := []struct {
		name string
		rec  domain.Record
	}{
		{"domain", &domain.DomainRecord{}},
		{"page", &domain.PageRecord{Domain: "d"}},
		{"page domain", &domain.PageRecord{URL: "https://d/u"}},
		{"period", &domain.PeriodRecord{Name: "x"}},
		{"politician", &domain.PoliticianRecord{FullName: "A"}},
		{"content header", &domain.ContentRecord{SourcePage: "https://d/a"}},
		{"hostless url", &domain.PeriodRecord{Number: "1", SourcePage: "/wiki/relative"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemStore()
			err := e.Apply(context.Background(), s, tc.rec)
			if !errors.Is(err, ErrMissingIdentity) {
				t.Fatalf("Apply: want ErrMissingIdentity, got=%v", err)
			}
			if diff := cmp.Diff(NewMemStore().Snapshot(), s.Snapshot()); diff != "" {
				t.Fatalf("failed record left state behind:\n%s", diff)
			}
		})
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	err := e.Apply(context.Background(), s,
		&domain.PageRecord{URL: "https://d/ok", Domain: "d"},
		samplePolitician(),
		&domain.ContentRecord{SourcePage: "https://d/a"},
	)
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("Apply: want ErrMissingIdentity, got=%v", err)
	}
	if got := s.Count(LabelPage); got != 0 {
		t.Fatalf("pages after aborted tx: want=0 got=%d", got)
	}
	if got := s.EdgeCount(); got != 0 {
		t.Fatalf("edges after aborted tx: want=0 got=%d", got)
	}
}

func TestDomainOf(t *testing.T) {
	got, err := DomainOf("https://de.wikipedia.org/wiki/Liste_der_Mitglieder")
	if err != nil {
		t.Fatalf("DomainOf: %v", err)
	}
	if got != "de.wikipedia.org" {
		t.Fatalf("DomainOf: want=%q got=%q", "de.wikipedia.org", got)
	}
	if _, err := DomainOf(""); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("DomainOf(\"\"): want ErrMissingIdentity, got=%v", err)
	}
}

func TestContentIDIgnoresSurroundingWhitespace(t *testing.T) {
	s := NewMemStore()
	e := newTestEngine()
	apply(t, e, s,
		&domain.ContentRecord{SourcePage: " https://d/a", SectionHeader: "  Leben\n", SectionText: "first"},
		&domain.ContentRecord{SourcePage: "https://d/a", SectionHeader: "Leben", SectionText: "second"},
	)
	if got := s.Count(LabelContent); got != 1 {
		t.Fatalf("content: want=1 got=%d", got)
	}
	c, ok := s.Node(LabelContent, identity.ContentID("https://d/a", "Leben"))
	if !ok {
		t.Fatalf("content keyed by trimmed url and header missing")
	}
	if c["section_header"] != "Leben" {
		t.Fatalf("section_header: want=%q got=%v", "Leben", c["section_header"])
	}
}
