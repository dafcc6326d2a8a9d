package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/legisgraph/internal/platform/logger"
	"github.com/yungbote/legisgraph/internal/platform/neo4jdb"
)

// Neo4jStore runs transactions against Neo4j. Writes are planned in memory first and sent as
// one UNWIND statement per node label and per relationship shape, nodes before edges, so a
// transaction costs a handful of round trips however many records it carries.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) *Neo4jStore {
	return &Neo4jStore{client: client, log: log.With("store", "Neo4jStore")}
}

func (s *Neo4jStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	if s == nil || s.client == nil || s.client.Driver == nil {
		return fmt.Errorf("graph: neo4j store not initialized")
	}
	p := newPlan()
	if err := fn(p); err != nil {
		return err
	}
	stmts := p.statements()
	if len(stmts) == 0 {
		return nil
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.Cypher, st.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: neo4j write (%d statements): %w", len(stmts), err)
	}
	return nil
}

// EnsureSchema creates a uniqueness constraint on every identity property. Failures are
// logged and skipped; the merges stay correct without the constraints, only slower.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.client == nil || s.client.Driver == nil {
		return fmt.Errorf("graph: neo4j store not initialized")
	}
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	for _, q := range constraintStatements() {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "statement", q, "error", err)
			continue
		}
		if _, err := res.Consume(ctx); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "statement", q, "error", err)
		}
	}
	return nil
}

func constraintStatements() []string {
	out := make([]string, 0, len(schema))
	for _, spec := range schema {
		name := strings.ToLower(string(spec.Label)) + "_" + spec.Key + "_unique"
		out = append(out, fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			name, spec.Label, spec.Key,
		))
	}
	return out
}

type statement struct {
	Cypher string
	Params map[string]any
}

type edgeShape struct {
	From Label
	Type RelType
	To   Label
}

// plan is the Tx handed to callers of Neo4jStore.ExecuteWrite.
type plan struct {
	nodeOrder []Label
	nodeRows  map[Label][]map[string]any
	edgeOrder []edgeShape
	edgeRows  map[edgeShape][]map[string]any
}

func newPlan() *plan {
	return &plan{
		nodeRows: make(map[Label][]map[string]any),
		edgeRows: make(map[edgeShape][]map[string]any),
	}
}

func (p *plan) MergeNode(w NodeWrite) error {
	if _, err := checkNode(w); err != nil {
		return err
	}
	props := make(map[string]any, len(w.Props))
	for k, v := range w.Props {
		if !absent(v) {
			props[k] = v
		}
	}
	if _, ok := p.nodeRows[w.Label]; !ok {
		p.nodeOrder = append(p.nodeOrder, w.Label)
	}
	p.nodeRows[w.Label] = append(p.nodeRows[w.Label], map[string]any{"key": w.Key, "props": props})
	return nil
}

func (p *plan) MergeEdge(w EdgeWrite) error {
	if err := checkEdge(w); err != nil {
		return err
	}
	shape := edgeShape{w.From.Label, w.Type, w.To.Label}
	if _, ok := p.edgeRows[shape]; !ok {
		p.edgeOrder = append(p.edgeOrder, shape)
	}
	p.edgeRows[shape] = append(p.edgeRows[shape], map[string]any{"from": w.From.Key, "to": w.To.Key})
	return nil
}

func (p *plan) statements() []statement {
	out := make([]statement, 0, len(p.nodeOrder)+len(p.edgeOrder))
	for _, label := range p.nodeOrder {
		spec, _ := SpecFor(label)
		out = append(out, statement{
			Cypher: nodeCypher(spec),
			Params: map[string]any{"rows": p.nodeRows[label]},
		})
	}
	for _, shape := range p.edgeOrder {
		out = append(out, statement{
			Cypher: edgeCypher(shape),
			Params: map[string]any{"rows": p.edgeRows[shape]},
		})
	}
	return out
}

// nodeCypher renders the merge statement for one label. Labels and property names come
// from the static schema, never from input.
func nodeCypher(spec NodeSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "UNWIND $rows AS r\nMERGE (n:%s {%s: r.key})", spec.Label, spec.Key)

	var onCreate, onMatch []string
	for _, p := range spec.Props {
		onCreate = append(onCreate, fmt.Sprintf("n.%s = r.props.%s", p.Name, p.Name))
		if p.Policy == FillIfAbsent {
			onMatch = append(onMatch, fmt.Sprintf("n.%s = coalesce(n.%s, r.props.%s)", p.Name, p.Name, p.Name))
		}
	}
	if len(onCreate) > 0 {
		b.WriteString("\nON CREATE SET " + strings.Join(onCreate, ", "))
	}
	if len(onMatch) > 0 {
		b.WriteString("\nON MATCH SET " + strings.Join(onMatch, ", "))
	}
	return b.String()
}

func edgeCypher(shape edgeShape) string {
	from, _ := SpecFor(shape.From)
	to, _ := SpecFor(shape.To)
	return fmt.Sprintf(
		"UNWIND $rows AS r\nMATCH (a:%s {%s: r.from})\nMATCH (b:%s {%s: r.to})\nMERGE (a)-[:%s]->(b)",
		from.Label, from.Key, to.Label, to.Key, shape.Type,
	)
}
