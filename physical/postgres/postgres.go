package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/logger"
	"github.com/stephnangue/vortex/physical"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const DefaultTable = "vortex_credentials"

var (
	_ token.Store      = (*Store)(nil)
	_ physical.Closer = (*Store)(nil)

	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// Options are the storage block keys understood by the postgres backend.
type Options struct {
	ConnectionURL      string        `mapstructure:"connection_url"`
	Table              string        `mapstructure:"table"`
	MaxIdleConnections int           `mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `mapstructure:"max_open_connections"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	SkipCreateTable    bool          `mapstructure:"skip_create_table"`
}

type credentialRow struct {
	ID             string    `gorm:"column:id;type:uuid;primaryKey"`
	Subject        string    `gorm:"column:subject;not null;index"`
	BindingContext string    `gorm:"column:binding_context;not null"`
	Enabled        bool      `gorm:"column:enabled;not null"`
	IssuedAt       time.Time `gorm:"column:issued_at;not null"`
	ExpiresAt      time.Time `gorm:"column:expires_at;not null;index"`
}

func (r *credentialRow) record() *token.Record {
	return &token.Record{
		ID:             r.ID,
		Subject:        r.Subject,
		BindingContext: r.BindingContext,
		Enabled:        r.Enabled,
		IssuedAt:       r.IssuedAt.UTC(),
		ExpiresAt:      r.ExpiresAt.UTC(),
	}
}

// Store keeps credential records in a PostgreSQL table through gorm.
type Store struct {
	db     *gorm.DB
	table  string
	logger logger.Logger
}

// NewPostgres is the physical.Factory for the "postgres" storage type.
func NewPostgres(ctx context.Context, conf map[string]string, log logger.Logger) (token.Store, error) {
	var opts Options
	if err := physical.DecodeConfig(conf, &opts); err != nil {
		return nil, err
	}
	if opts.ConnectionURL == "" {
		return nil, errors.New("postgres storage requires connection_url")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := gorm.Open(postgres.Open(opts.ConnectionURL), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConnections)
	}
	if opts.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConnections)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s, err := New(db, opts.Table, log)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if !opts.SkipCreateTable {
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	log.Info("postgres credential store ready", logger.String("table", s.table))
	return s, nil
}

// New wraps an open gorm handle. An empty table selects DefaultTable.
func New(db *gorm.DB, table string, log logger.Logger) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{db: db, table: table, logger: log}, nil
}

// Migrate creates the credential table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&credentialRow{}); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *Store) Create(ctx context.Context, subject, bindingContext string, issuedAt, expiresAt time.Time) (*token.Record, error) {
	row := credentialRow{
		ID:             uuid.NewString(),
		Subject:        subject,
		BindingContext: bindingContext,
		Enabled:        true,
		IssuedAt:       issuedAt.UTC(),
		ExpiresAt:      expiresAt.UTC(),
	}
	if err := s.tx(ctx).Create(&row).Error; err != nil {
		return nil, unavailable("insert credential", err)
	}
	return row.record(), nil
}

func (s *Store) Get(ctx context.Context, id string) (*token.Record, error) {
	// the column is a uuid; anything else cannot exist
	if _, err := uuid.Parse(id); err != nil {
		return nil, token.ErrNotFound
	}

	var row credentialRow
	err := s.tx(ctx).Where("id = ?", id).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, token.ErrNotFound
	case err != nil:
		return nil, unavailable("select credential", err)
	}
	return row.record(), nil
}

// Disable flips enabled with a single conditional UPDATE, so concurrent
// readers see either the old or the new row and an already disabled row is
// not rewritten.
func (s *Store) Disable(ctx context.Context, id string) (*token.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, token.ErrNotFound
	}

	res := s.tx(ctx).Where("id = ? AND enabled = ?", id, true).Update("enabled", false)
	if res.Error != nil {
		return nil, unavailable("disable credential", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Debug("credential row disabled", logger.String("credential_id", id))
	}
	return s.Get(ctx, id)
}

func (s *Store) FindBySubject(ctx context.Context, subject string, p token.Pagination) (*token.Page, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	var total int64
	if err := s.tx(ctx).Where("subject = ?", subject).Count(&total).Error; err != nil {
		return nil, unavailable("count credentials", err)
	}

	page := &token.Page{Page: p.Page, Size: p.Size, Total: total, Records: []*token.Record{}}
	if int64(p.Offset()) >= total {
		return page, nil
	}

	var rows []credentialRow
	err = s.tx(ctx).
		Where("subject = ?", subject).
		Order(p.OrderClause()).
		Limit(p.Size).
		Offset(p.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("list credentials", err)
	}
	for i := range rows {
		page.Records = append(page.Records, rows[i].record())
	}
	return page, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", token.ErrStoreUnavailable, op, err)
}
