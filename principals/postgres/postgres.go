// Package postgres provides a principals.Store over a PostgreSQL "users"
// table using gorm. IDs are bigint primary keys.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ggoodman/authguard/principals"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("postgres: database unavailable")

// UserModel is the row shape backing a principal.
type UserModel struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"not null;default:''"`
	Email     string    `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m UserModel) principal() principals.Principal {
	return principals.Principal{
		ID:        principals.ID(strconv.FormatInt(m.ID, 10)),
		Name:      m.Name,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
	}
}

// Store implements principals.Store with gorm.
type Store struct {
	db *gorm.DB
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL using dsn.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: gdb}, nil
}

// Migrate creates or updates the users table.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return errDBUnavailable
	}
	return s.db.WithContext(ctx).AutoMigrate(&UserModel{})
}

// FindByID runs a single primary-key lookup. IDs that are not base-10
// integers cannot exist in the table and are reported as not found without
// touching the database.
func (s *Store) FindByID(ctx context.Context, id principals.ID) (principals.Principal, error) {
	if s.db == nil {
		return principals.Principal{}, errDBUnavailable
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return principals.Principal{}, principals.ErrNotFound
	}

	var m UserModel
	err = s.db.WithContext(ctx).Where("id = ?", n).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return principals.Principal{}, principals.ErrNotFound
		}
		return principals.Principal{}, fmt.Errorf("query principal %s: %w", id, err)
	}
	return m.principal(), nil
}

// Put inserts or updates a principal row.
func (s *Store) Put(ctx context.Context, p principals.Principal) error {
	if s.db == nil {
		return errDBUnavailable
	}
	n, err := strconv.ParseInt(string(p.ID), 10, 64)
	if err != nil {
		return fmt.Errorf("postgres principal id must be an integer: %w", err)
	}
	m := UserModel{ID: n, Name: p.Name, Email: p.Email, CreatedAt: p.CreatedAt}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Save(&m).Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Compile-time interface check
var _ principals.Store = (*Store)(nil)
