package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/armon/go-radix"
	"github.com/google/uuid"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/logger"
	"github.com/stephnangue/vortex/physical"
)

var _ token.Store = (*Store)(nil)

// keySeparator joins subject and id in the tree key so that a subject's
// records share a prefix.
const keySeparator = "\x00"

// Store keeps credential records in memory. Useful for development and
// tests; nothing survives a restart.
//
// Records live in a radix tree keyed by subject and id, which makes listing
// a subject a prefix walk. keys maps an id back to its tree key.
type Store struct {
	mu     sync.RWMutex
	root   *radix.Tree
	keys   map[string]string
	logger logger.Logger
}

func recordKey(subject, id string) string {
	return subject + keySeparator + id
}

// NewInmem is the physical.Factory for the "inmem" storage type. It accepts
// no options.
func NewInmem(_ context.Context, conf map[string]string, log logger.Logger) (token.Store, error) {
	var opts struct{}
	if err := physical.DecodeConfig(conf, &opts); err != nil {
		return nil, err
	}
	return New(log), nil
}

func New(log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		root:   radix.New(),
		keys:   make(map[string]string),
		logger: log,
	}
}

func (s *Store) Create(ctx context.Context, subject, bindingContext string, issuedAt, expiresAt time.Time) (*token.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	record := &token.Record{
		ID:             uuid.NewString(),
		Subject:        subject,
		BindingContext: bindingContext,
		Enabled:        true,
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(subject, record.ID)
	s.root.Insert(key, record)
	s.keys[record.ID] = key

	s.logger.Trace("record created", logger.String("credential_id", record.ID))
	return record.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id string) (*token.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.lookup(id)
	if !ok {
		return nil, token.ErrNotFound
	}
	return record.Clone(), nil
}

// lookup must be called with the lock held.
func (s *Store) lookup(id string) (*token.Record, bool) {
	key, ok := s.keys[id]
	if !ok {
		return nil, false
	}
	v, ok := s.root.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*token.Record), true
}

func (s *Store) Disable(ctx context.Context, id string) (*token.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.lookup(id)
	if !ok {
		return nil, token.ErrNotFound
	}
	if record.Enabled {
		record.Enabled = false
		s.logger.Trace("record disabled", logger.String("credential_id", id))
	}
	return record.Clone(), nil
}

func (s *Store) FindBySubject(ctx context.Context, subject string, p token.Pagination) (*token.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	var records []*token.Record
	s.mu.RLock()
	s.root.WalkPrefix(subject+keySeparator, func(_ string, v interface{}) bool {
		record := v.(*token.Record)
		// a subject that itself contains the separator shares the prefix
		if record.Subject == subject {
			records = append(records, record.Clone())
		}
		return false
	})
	s.mu.RUnlock()

	return p.Apply(records), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root.Len()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", token.ErrStoreUnavailable, err)
}
