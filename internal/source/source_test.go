package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"github.com/yungbote/legisgraph/internal/data/graph"
	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/ingest"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

func TestJSONLinesSkipsBlankAndReportsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"item_type":"domain","domain":"d","description":"D"}`,
		``,
		`   `,
		`{"kind":"page","url":"https://d/a","source_domain":"d"`,
		`{"kind":"legislative_period","period_number":20,"name":"20. Wahlperiode"}`,
		`{"kind":"mystery"}`,
	}, "\n")
	src := NewJSONLines(strings.NewReader(input), "records.jsonl")
	ctx := context.Background()

	rec, err := src.Next(ctx)
	if err != nil || rec.Kind() != domain.KindDomain {
		t.Fatalf("line 1: want domain record, got=%v err=%v", rec, err)
	}

	_, err = src.Next(ctx)
	var de *ingest.DecodeError
	if !errors.As(err, &de) || de.Position != "records.jsonl:4" {
		t.Fatalf("line 4: want DecodeError at records.jsonl:4, got=%v", err)
	}

	rec, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("line 5: %v", err)
	}
	if p, ok := rec.(*domain.PeriodRecord); !ok || p.Number != "20" {
		t.Fatalf("line 5: want period 20, got=%#v", rec)
	}

	_, err = src.Next(ctx)
	if !errors.Is(err, domain.ErrUnknownKind) || !errors.As(err, &de) {
		t.Fatalf("line 6: want DecodeError wrapping ErrUnknownKind, got=%v", err)
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("end: want io.EOF, got=%v", err)
	}
}

func TestJSONLinesThroughRouter(t *testing.T) {
	input := `{"kind":"legislative_period","period_number":"20","name":"20. Wahlperiode"}
{"kind":"politician","legislative_period_number":20,"full_name":"A B","political_party":"GRÜNE","source_page":"https://d/list","detail_page":"https://d/a"}
not json
{"kind":"politician_content","source_page":"https://d/a","section_header":"Leben","section_content":"..."}
`
	log := logger.NewNop()
	store := graph.NewMemStore()
	r := ingest.NewRouter(log, graph.NewEngine(log, nil), store, ingest.RouterConfig{BatchSize: 10})

	stats, err := r.Run(context.Background(), NewJSONLines(strings.NewReader(input), "stdin"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Undecodable != 1 {
		t.Fatalf("undecodable: want=1 got=%d", stats.Undecodable)
	}
	pol := graph.NodeRef{Label: graph.LabelPolitician, Key: "https://d/a"}
	if !store.HasEdge(pol, graph.RelServedDuring, graph.NodeRef{Label: graph.LabelPeriod, Key: "20"}) {
		t.Fatalf("SERVED_DURING missing")
	}
	if _, ok := store.Node(graph.LabelParty, "Bündnis 90/Die Grünen"); !ok {
		t.Fatalf("normalized party missing")
	}
	if store.Count(graph.LabelContent) != 1 {
		t.Fatalf("content: want=1 got=%d", store.Count(graph.LabelContent))
	}
}

type ackCall struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	calls []ackCall
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.calls = append(a.calls, ackCall{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.calls = append(a.calls, ackCall{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestAMQPSourceSettlement(t *testing.T) {
	acker := &fakeAcknowledger{}
	deliveries := make(chan amqp091.Delivery, 4)
	deliveries <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte(`{"kind":"domain","domain":"d"}`)}
	deliveries <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte(`{oops`)}
	deliveries <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte(`{"kind":"page","url":"https://d/a","source_domain":"d"}`)}
	deliveries <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: 4, Body: []byte(`{"kind":"page","url":"https://d/b","source_domain":"d"}`)}
	close(deliveries)

	src := newAMQPSource(logger.NewNop(), deliveries)
	ctx := context.Background()

	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("Next(1): %v", err)
	}
	if _, err := src.Next(ctx); err == nil {
		t.Fatalf("Next before Done: expected error")
	}
	if err := src.Done(ctx, nil); err != nil {
		t.Fatalf("Done(1): %v", err)
	}

	_, err := src.Next(ctx)
	if err := src.Done(ctx, err); err != nil {
		t.Fatalf("Done(2): %v", err)
	}

	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("Next(3): %v", err)
	}
	if err := src.Done(ctx, fmt.Errorf("ingest: write: %w", errors.New("timeout"))); err != nil {
		t.Fatalf("Done(3): %v", err)
	}

	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("Next(4): %v", err)
	}
	if err := src.Done(ctx, fmt.Errorf("flush: %w: %w", ingest.ErrBatchSpooled, errors.New("timeout"))); err != nil {
		t.Fatalf("Done(4): %v", err)
	}

	want := []ackCall{
		{tag: 1, ack: true},
		{tag: 2, requeue: false},
		{tag: 3, requeue: true},
		{tag: 4, ack: true},
	}
	if len(acker.calls) != len(want) {
		t.Fatalf("settlements: want=%v got=%v", want, acker.calls)
	}
	for i := range want {
		if acker.calls[i] != want[i] {
			t.Fatalf("settlement %d: want=%+v got=%+v", i, want[i], acker.calls[i])
		}
	}

	if _, err := src.Next(ctx); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("closed channel without Close: want error, got=%v", err)
	}
}
