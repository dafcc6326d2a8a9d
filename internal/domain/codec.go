package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind   = errors.New("unknown record kind")
	ErrInvalidRecord = errors.New("invalid record")
)

type envelope struct {
	Kind     Kind `json:"kind"`
	ItemType Kind `json:"item_type"`
}

// Decode parses one JSON record. The discriminator is read from "kind", falling back to the
// crawler's "item_type".
func Decode(raw []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("domain: decode envelope: %w", err)
	}
	kind := Kind(strings.TrimSpace(string(env.Kind)))
	if kind == "" {
		kind = Kind(strings.TrimSpace(string(env.ItemType)))
	}

	var rec Record
	switch kind {
	case KindDomain:
		rec = &DomainRecord{}
	case KindPage:
		rec = &PageRecord{}
	case KindPeriod:
		rec = &PeriodRecord{}
	case KindPolitician:
		rec = &PoliticianRecord{}
	case KindContent:
		rec = &ContentRecord{}
	default:
		return nil, fmt.Errorf("domain: %w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("domain: decode %s: %w", kind, err)
	}
	return rec, nil
}

// Encode writes a record with its "kind" discriminator so Decode can read it back.
func Encode(rec Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("domain: encode nil record")
	}
	switch r := rec.(type) {
	case *DomainRecord:
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*DomainRecord
		}{r.Kind(), r})
	case *PageRecord:
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*PageRecord
		}{r.Kind(), r})
	case *PeriodRecord:
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*PeriodRecord
		}{r.Kind(), r})
	case *PoliticianRecord:
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*PoliticianRecord
		}{r.Kind(), r})
	case *ContentRecord:
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*ContentRecord
		}{r.Kind(), r})
	default:
		return nil, fmt.Errorf("domain: %w: %T", ErrUnknownKind, rec)
	}
}

// EncodeBatch encodes records as a JSON array of encoded records.
func EncodeBatch(recs []Record) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		b, err := Encode(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return json.Marshal(items)
}

func DecodeBatch(raw []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("domain: decode batch: %w", err)
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := Decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
