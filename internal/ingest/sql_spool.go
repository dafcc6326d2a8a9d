package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

// SpooledBatch is the row a failed batch is kept in.
type SpooledBatch struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      string         `gorm:"column:kind;not null;index" json:"kind"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	Records   datatypes.JSON `gorm:"column:records;not null" json:"records"`
	SpooledAt time.Time      `gorm:"column:spooled_at;not null;index" json:"spooled_at"`
}

func (SpooledBatch) TableName() string { return "spooled_batches" }

// SQLSpool keeps failed batches in a relational table (sqlite or postgres).
type SQLSpool struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSQLSpool migrates the spool table and returns the spool.
func NewSQLSpool(db *gorm.DB, log *logger.Logger) (*SQLSpool, error) {
	if db == nil {
		return nil, fmt.Errorf("ingest: sql spool requires a database")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if err := db.AutoMigrate(&SpooledBatch{}); err != nil {
		return nil, fmt.Errorf("ingest: migrate spooled_batches: %w", err)
	}
	return &SQLSpool{db: db, log: log.With("service", "SQLSpool")}, nil
}

func (s *SQLSpool) Name() string { return "sql" }

func (s *SQLSpool) Put(ctx context.Context, b Batch) error {
	recs, err := domain.EncodeBatch(b.Records)
	if err != nil {
		return fmt.Errorf("ingest: encode batch %s: %w", b.ID, err)
	}
	id, err := uuid.Parse(b.ID)
	if err != nil {
		id = uuid.New()
	}
	row := &SpooledBatch{
		ID:        id,
		Kind:      string(b.Kind),
		Error:     b.Error,
		Records:   datatypes.JSON(recs),
		SpooledAt: b.SpooledAt,
	}
	if row.SpooledAt.IsZero() {
		row.SpooledAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("ingest: sql spool put %s: %w", b.ID, err)
	}
	return nil
}

func (s *SQLSpool) Take(ctx context.Context, kind domain.Kind) ([]Batch, error) {
	var rows []SpooledBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ?", string(kind)).
			Order("spooled_at ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		return tx.Where("id IN ?", ids).Delete(&SpooledBatch{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: sql spool take %s: %w", kind, err)
	}

	out := make([]Batch, 0, len(rows))
	for _, r := range rows {
		recs, err := domain.DecodeBatch(r.Records)
		if err != nil {
			// The row is gone; keep the payload in the log so it can be recovered by hand.
			s.log.Error("undecodable spooled batch dropped", "batch_id", r.ID, "records", string(r.Records), "error", err)
			continue
		}
		out = append(out, Batch{
			ID:        r.ID.String(),
			Kind:      domain.Kind(r.Kind),
			Records:   recs,
			Error:     r.Error,
			SpooledAt: r.SpooledAt,
		})
	}
	return out, nil
}

// Count returns the number of spooled batches of kind.
func (s *SQLSpool) Count(ctx context.Context, kind domain.Kind) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&SpooledBatch{}).Where("kind = ?", string(kind)).Count(&n).Error
	return n, err
}
