package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/identity"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

// Engine turns records into idempotent node and relationship merges. It holds no state
// besides its configuration and is safe to share.
type Engine struct {
	log     *logger.Logger
	aliases identity.Aliases
}

func NewEngine(log *logger.Logger, aliases identity.Aliases) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if aliases == nil {
		aliases = identity.DefaultAliases()
	}
	return &Engine{log: log.With("service", "UpsertEngine"), aliases: aliases}
}

// Apply writes recs in order inside a single transaction of store.
func (e *Engine) Apply(ctx context.Context, store Store, recs ...domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return store.ExecuteWrite(ctx, func(tx Tx) error {
		for _, rec := range recs {
			if err := e.Write(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Check runs the write routine of rec against no store. It reports the errors that lie in
// the record itself, such as a missing identity field, and never touches the graph.
func (e *Engine) Check(rec domain.Record) error {
	return e.Write(discardTx{}, rec)
}

type discardTx struct{}

func (discardTx) MergeNode(NodeWrite) error { return nil }
func (discardTx) MergeEdge(EdgeWrite) error { return nil }

// Write dispatches rec to the write routine of its kind.
func (e *Engine) Write(tx Tx, rec domain.Record) error {
	switch r := rec.(type) {
	case *domain.DomainRecord:
		return e.WriteDomain(tx, r)
	case *domain.PageRecord:
		return e.WritePage(tx, r)
	case *domain.PeriodRecord:
		return e.WritePeriod(tx, r)
	case *domain.PoliticianRecord:
		return e.WritePolitician(tx, r)
	case *domain.ContentRecord:
		return e.WriteContent(tx, r)
	default:
		return fmt.Errorf("graph: %w: %T", domain.ErrUnknownKind, rec)
	}
}

// DomainOf returns the host part of a page URL.
func DomainOf(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("graph: page url: %w", ErrMissingIdentity)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("graph: parse page url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("graph: page url %q has no host: %w", rawURL, ErrMissingIdentity)
	}
	return u.Host, nil
}

// EnsurePage merges the page, its domain and the edge between them. Every routine that
// references a URL goes through here.
func (e *Engine) EnsurePage(tx Tx, rawURL, title, html string) error {
	host, err := DomainOf(rawURL)
	if err != nil {
		return err
	}
	return e.mergePage(tx, strings.TrimSpace(rawURL), title, html, host)
}

func (e *Engine) mergePage(tx Tx, pageURL, title, html, host string) error {
	if err := tx.MergeNode(NodeWrite{Label: LabelDomain, Key: host}); err != nil {
		return err
	}
	if err := tx.MergeNode(NodeWrite{
		Label: LabelPage,
		Key:   pageURL,
		Props: props("title", title, "html", html),
	}); err != nil {
		return err
	}
	return tx.MergeEdge(EdgeWrite{
		From: NodeRef{LabelPage, pageURL},
		Type: RelBelongsToDomain,
		To:   NodeRef{LabelDomain, host},
	})
}

func (e *Engine) WriteDomain(tx Tx, r *domain.DomainRecord) error {
	name := strings.TrimSpace(r.Domain)
	if name == "" {
		return missing(domain.KindDomain, "domain")
	}
	return tx.MergeNode(NodeWrite{
		Label: LabelDomain,
		Key:   name,
		Props: props("description", r.Description),
	})
}

// WritePage merges a page under the domain the record states. The stated domain is not
// reconciled with the URL host.
func (e *Engine) WritePage(tx Tx, r *domain.PageRecord) error {
	pageURL := strings.TrimSpace(r.URL)
	if pageURL == "" {
		return missing(domain.KindPage, "url")
	}
	host := strings.TrimSpace(r.Domain)
	if host == "" {
		return missing(domain.KindPage, "source_domain")
	}
	return e.mergePage(tx, pageURL, r.Title, r.HTML, host)
}

func (e *Engine) WritePeriod(tx Tx, r *domain.PeriodRecord) error {
	nr := strings.TrimSpace(r.Number.String())
	if nr == "" {
		return missing(domain.KindPeriod, "period_number")
	}
	if err := tx.MergeNode(NodeWrite{
		Label: LabelPeriod,
		Key:   nr,
		Props: props("name", r.Name, "start_date", r.StartDate, "end_date", r.EndDate),
	}); err != nil {
		return err
	}
	period := NodeRef{LabelPeriod, nr}

	for _, link := range []struct {
		url string
		rel RelType
	}{
		{strings.TrimSpace(r.SourcePage), RelHasSourcePage},
		{strings.TrimSpace(r.DetailPage), RelHasDetailPage},
	} {
		if link.url == "" {
			continue
		}
		if err := e.EnsurePage(tx, link.url, "", ""); err != nil {
			return err
		}
		if err := tx.MergeEdge(EdgeWrite{From: period, Type: link.rel, To: NodeRef{LabelPage, link.url}}); err != nil {
			return err
		}
	}
	return nil
}

// WritePolitician merges the politician, its pages and, when the record names a period,
// its mandate. SERVED_DURING and IN_PERIOD only attach once the period exists.
func (e *Engine) WritePolitician(tx Tx, r *domain.PoliticianRecord) error {
	det := strings.TrimSpace(r.DetailPage)
	if det == "" {
		return missing(domain.KindPolitician, "detail_page")
	}
	src := strings.TrimSpace(r.SourcePage)

	if err := tx.MergeNode(NodeWrite{
		Label: LabelPolitician,
		Key:   det,
		Props: props(
			"full_name", strings.TrimSpace(r.FullName),
			"firstname", r.Firstname,
			"lastname", r.Lastname,
			"birthname", r.Birthname,
			"birth_year", r.BirthYear.String(),
			"death_year", r.DeathYear.String(),
			"remarks", r.Remarks,
		),
	}); err != nil {
		return err
	}
	pol := NodeRef{LabelPolitician, det}
	detPage := NodeRef{LabelPage, det}

	var edges []EdgeWrite
	if src != "" {
		if err := e.EnsurePage(tx, src, "", ""); err != nil {
			return err
		}
		edges = append(edges, EdgeWrite{From: pol, Type: RelHasSourcePage, To: NodeRef{LabelPage, src}})
	}
	if err := e.EnsurePage(tx, det, "", ""); err != nil {
		return err
	}
	edges = append(edges, EdgeWrite{From: pol, Type: RelHasDetailPage, To: detPage})
	if src != "" {
		edges = append(edges, EdgeWrite{From: NodeRef{LabelPage, src}, Type: RelLinksToDetail, To: detPage})
	}

	if nr := strings.TrimSpace(r.PeriodNumber.String()); nr != "" {
		mandate, mandateEdges, err := e.mergeMandate(tx, nr, det, r)
		if err != nil {
			return err
		}
		period := NodeRef{LabelPeriod, nr}
		edges = append(edges,
			EdgeWrite{From: pol, Type: RelServedDuring, To: period},
			EdgeWrite{From: pol, Type: RelHasMandate, To: mandate},
			EdgeWrite{From: mandate, Type: RelInPeriod, To: period},
		)
		edges = append(edges, mandateEdges...)
	}

	for _, edge := range edges {
		if err := tx.MergeEdge(edge); err != nil {
			return err
		}
	}
	return nil
}

// mergeMandate merges the mandate node and the optional party, state and constituency
// nodes, returning the descriptive edges still to be written.
func (e *Engine) mergeMandate(tx Tx, periodNr, det string, r *domain.PoliticianRecord) (NodeRef, []EdgeWrite, error) {
	id := identity.MandateID(periodNr, det)
	party := e.aliases.Normalize(r.Party)
	state := strings.TrimSpace(r.State)
	constituency := strings.TrimSpace(r.Constituency)

	if err := tx.MergeNode(NodeWrite{
		Label: LabelMandate,
		Key:   id,
		Props: props("political_party", party, "federate_state", state, "constituency", constituency),
	}); err != nil {
		return NodeRef{}, nil, err
	}
	mandate := NodeRef{LabelMandate, id}

	var edges []EdgeWrite
	for _, d := range []struct {
		label Label
		name  string
		rel   RelType
	}{
		{LabelParty, party, RelAffiliatedWith},
		{LabelState, state, RelRepresentsState},
		{LabelConstituency, constituency, RelRepresentsConstituency},
	} {
		if d.name == "" {
			continue
		}
		if err := tx.MergeNode(NodeWrite{Label: d.label, Key: d.name}); err != nil {
			return NodeRef{}, nil, err
		}
		edges = append(edges, EdgeWrite{From: mandate, Type: d.rel, To: NodeRef{d.label, d.name}})
	}
	return mandate, edges, nil
}

// WriteContent merges one page section and links it to its page and to the politician
// owning it. The politician link attaches only once that politician exists.
func (e *Engine) WriteContent(tx Tx, r *domain.ContentRecord) error {
	src := strings.TrimSpace(r.SourcePage)
	if src == "" {
		return missing(domain.KindContent, "source_page")
	}
	header := strings.TrimSpace(r.SectionHeader)
	if header == "" {
		return missing(domain.KindContent, "section_header")
	}
	id := identity.ContentID(src, header)

	if err := e.EnsurePage(tx, src, "", ""); err != nil {
		return err
	}
	if err := tx.MergeNode(NodeWrite{
		Label: LabelContent,
		Key:   id,
		Props: props("section_header", header, "section_content", r.SectionText),
	}); err != nil {
		return err
	}
	content := NodeRef{LabelContent, id}
	if err := tx.MergeEdge(EdgeWrite{From: content, Type: RelHasSourcePage, To: NodeRef{LabelPage, src}}); err != nil {
		return err
	}
	owner := strings.TrimSpace(r.Owner())
	return tx.MergeEdge(EdgeWrite{From: NodeRef{LabelPolitician, owner}, Type: RelHasContent, To: content})
}

func missing(kind domain.Kind, field string) error {
	return fmt.Errorf("graph: %s.%s: %w", kind, field, ErrMissingIdentity)
}

// props builds a property map from name/value pairs, leaving out empty values.
func props(kv ...string) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		out[kv[i]] = kv[i+1]
	}
	return out
}
