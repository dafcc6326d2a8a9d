package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/legisgraph/internal/domain"
)

type spooledBatch struct {
	ID        string          `json:"id"`
	Kind      domain.Kind     `json:"kind"`
	Error     string          `json:"error,omitempty"`
	SpooledAt time.Time       `json:"spooled_at"`
	Records   json.RawMessage `json:"records"`
}

func marshalBatch(b Batch) ([]byte, error) {
	recs, err := domain.EncodeBatch(b.Records)
	if err != nil {
		return nil, fmt.Errorf("ingest: encode batch %s: %w", b.ID, err)
	}
	return json.Marshal(spooledBatch{
		ID:        b.ID,
		Kind:      b.Kind,
		Error:     b.Error,
		SpooledAt: b.SpooledAt,
		Records:   recs,
	})
}

func unmarshalBatch(raw []byte) (Batch, error) {
	var sb spooledBatch
	if err := json.Unmarshal(raw, &sb); err != nil {
		return Batch{}, fmt.Errorf("ingest: decode spooled batch: %w", err)
	}
	recs, err := domain.DecodeBatch(sb.Records)
	if err != nil {
		return Batch{}, fmt.Errorf("ingest: decode spooled batch %s: %w", sb.ID, err)
	}
	return Batch{
		ID:        sb.ID,
		Kind:      sb.Kind,
		Records:   recs,
		Error:     sb.Error,
		SpooledAt: sb.SpooledAt,
	}, nil
}
