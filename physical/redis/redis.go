package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/logger"
	"github.com/stephnangue/vortex/physical"
)

const DefaultKeyPrefix = "vortex:"

var (
	_ token.Store      = (*Store)(nil)
	_ physical.Closer = (*Store)(nil)
)

// disableScript returns 0 for a missing record, 1 when it was already
// disabled and 2 when this call disabled it.
var disableScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "enabled") == "1" then
  redis.call("HSET", KEYS[1], "enabled", "0")
  return 2
end
return 1
`)

// Options are the storage block keys understood by the redis backend.
type Options struct {
	Address   string        `mapstructure:"address"`
	URL       string        `mapstructure:"url"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Retention time.Duration `mapstructure:"retention"`
}

// Store keeps each credential record in a hash and indexes ids per subject
// in a sorted set scored by issue time. Records are kept forever unless a
// retention is configured, in which case the hash expires from Redis that
// long after the credential itself expires.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	logger    logger.Logger
}

// NewRedis is the physical.Factory for the "redis" storage type.
func NewRedis(ctx context.Context, conf map[string]string, log logger.Logger) (token.Store, error) {
	var opts Options
	if err := physical.DecodeConfig(conf, &opts); err != nil {
		return nil, err
	}

	var ropts *redis.Options
	switch {
	case opts.URL != "":
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		ropts = parsed
	case opts.Address != "":
		ropts = &redis.Options{
			Addr:     opts.Address,
			Username: opts.Username,
			Password: opts.Password,
			DB:       opts.DB,
		}
	default:
		return nil, errors.New("redis storage requires address or url")
	}

	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := New(client, opts.KeyPrefix, opts.Retention, log)
	s.logger.Info("redis credential store ready", logger.String("address", ropts.Addr), logger.String("prefix", s.prefix))
	return s, nil
}

func New(client redis.UniversalClient, prefix string, retention time.Duration, log logger.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if retention < 0 {
		retention = 0
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{client: client, prefix: prefix, retention: retention, logger: log}
}

func (s *Store) recordKey(id string) string {
	return s.prefix + "cred:" + id
}

func (s *Store) subjectKey(subject string) string {
	return s.prefix + "subject:" + subject
}

func (s *Store) Create(ctx context.Context, subject, bindingContext string, issuedAt, expiresAt time.Time) (*token.Record, error) {
	record := &token.Record{
		ID:             uuid.NewString(),
		Subject:        subject,
		BindingContext: bindingContext,
		Enabled:        true,
		IssuedAt:       issuedAt.UTC(),
		ExpiresAt:      expiresAt.UTC(),
	}
	key := s.recordKey(record.ID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encode(record))
		if s.retention > 0 {
			pipe.PExpireAt(ctx, key, record.ExpiresAt.Add(s.retention))
		}
		pipe.ZAdd(ctx, s.subjectKey(subject), redis.Z{
			Score:  float64(record.IssuedAt.UnixMilli()),
			Member: record.ID,
		})
		return nil
	})
	if err != nil {
		return nil, unavailable("create credential", err)
	}
	return record, nil
}

func (s *Store) Get(ctx context.Context, id string) (*token.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, unavailable("get credential", err)
	}
	if len(fields) == 0 {
		return nil, token.ErrNotFound
	}
	record, err := decode(id, fields)
	if err != nil {
		return nil, unavailable("decode credential", err)
	}
	return record, nil
}

func (s *Store) Disable(ctx context.Context, id string) (*token.Record, error) {
	res, err := disableScript.Run(ctx, s.client, []string{s.recordKey(id)}).Int()
	if err != nil {
		return nil, unavailable("disable credential", err)
	}
	switch res {
	case 0:
		return nil, token.ErrNotFound
	case 2:
		s.logger.Debug("credential hash disabled", logger.String("credential_id", id))
	}
	return s.Get(ctx, id)
}

// FindBySubject loads every live record of the subject and pages in
// memory. Index entries whose hash has expired are pruned on the way.
func (s *Store) FindBySubject(ctx context.Context, subject string, p token.Pagination) (*token.Page, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	indexKey := s.subjectKey(subject)
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable("list credential ids", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("load credentials", err)
	}

	records := make([]*token.Record, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		record, err := decode(ids[i], fields)
		if err != nil {
			s.logger.Warn("skipping undecodable credential", logger.String("credential_id", ids[i]), logger.Err(err))
			continue
		}
		records = append(records, record)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune subject index", logger.String("subject", subject), logger.Err(err))
		}
	}

	return p.Apply(records), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func encode(r *token.Record) map[string]any {
	enabled := "0"
	if r.Enabled {
		enabled = "1"
	}
	return map[string]any{
		"subject":         r.Subject,
		"binding_context": r.BindingContext,
		"enabled":         enabled,
		"issued_at":       strconv.FormatInt(r.IssuedAt.UnixNano(), 10),
		"expires_at":      strconv.FormatInt(r.ExpiresAt.UnixNano(), 10),
	}
}

func decode(id string, fields map[string]string) (*token.Record, error) {
	issued, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("issued_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	return &token.Record{
		ID:             id,
		Subject:        fields["subject"],
		BindingContext: fields["binding_context"],
		Enabled:        fields["enabled"] == "1",
		IssuedAt:       time.Unix(0, issued).UTC(),
		ExpiresAt:      time.Unix(0, expires).UTC(),
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", token.ErrStoreUnavailable, op, err)
}
