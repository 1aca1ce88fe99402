package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/store/sqlstore"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is the postgres flavour of the shared sqlx store.
type Store struct {
	*sqlstore.Store
}

// NewStore connects to dsn and verifies the connection with a ping.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{Store: sqlstore.New(db, sqlstore.Dialect{
		IsUniqueViolation:     hasCode(codeUniqueViolation),
		IsForeignKeyViolation: hasCode(codeForeignKeyViolation),
	})}, nil
}

func hasCode(code pq.ErrorCode) func(error) bool {
	return func(err error) bool {
		var pe *pq.Error
		return errors.As(err, &pe) && pe.Code == code
	}
}
