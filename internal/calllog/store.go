package calllog

import (
	"context"
	"errors"

	"github.com/eleven-am/livecaption/internal/shared"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Call{})
}

func (s *Store) Create(ctx context.Context, call *Call) error {
	if call.ID == "" {
		call.ID = shared.NewID("call_")
	}
	return s.db.WithContext(ctx).Create(call).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Call, error) {
	var call Call
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&call).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// List returns the newest calls first, optionally only those involving peer.
func (s *Store) List(ctx context.Context, peer string, limit int) ([]*Call, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if peer != "" {
		q = q.Where("caller = ? OR callee = ?", peer, peer)
	}

	var calls []*Call
	err := q.Find(&calls).Error
	return calls, err
}
