package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// PeriodPage is a legislative period together with its member list page.
type PeriodPage struct {
	Number string
	URL    string
}

// PeriodDetailPages lists the member list pages the politician crawl starts from.
func (s *Neo4jStore) PeriodDetailPages(ctx context.Context) ([]PeriodPage, error) {
	if s == nil || s.client == nil || s.client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j store not initialized")
	}
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (per:Period)-[:HAS_DETAIL_PAGE]->(pg:Page)
RETURN per.number AS period, pg.url AS url
ORDER BY period, url
`, nil)
		if err != nil {
			return nil, err
		}
		var pages []PeriodPage
		for res.Next(ctx) {
			rec := res.Record()
			period, _ := rec.Get("period")
			url, _ := rec.Get("url")
			pages = append(pages, PeriodPage{Number: asString(period), URL: asString(url)})
		}
		return pages, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: period detail pages: %w", err)
	}
	pages, _ := out.([]PeriodPage)
	return pages, nil
}

// PoliticianDetailPages pages through politician detail pages in url order, for the content
// crawl.
func (s *Neo4jStore) PoliticianDetailPages(ctx context.Context, skip, limit int) ([]string, error) {
	if s == nil || s.client == nil || s.client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j store not initialized")
	}
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		return nil, nil
	}
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (po:Politician)
WHERE po.detail_page IS NOT NULL
RETURN po.detail_page AS url
ORDER BY url
SKIP $skip
LIMIT $limit
`, map[string]any{"skip": int64(skip), "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		var urls []string
		for res.Next(ctx) {
			url, _ := res.Record().Get("url")
			urls = append(urls, asString(url))
		}
		return urls, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: politician detail pages: %w", err)
	}
	urls, _ := out.([]string)
	return urls, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
