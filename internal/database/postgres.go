package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type PgDMRepository struct {
	conn *sql.DB
}

func NewPgDMRepository(dsn string) (*PgDMRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &PgDMRepository{conn: db}, nil
}

// NewPgDMRepositoryFromDB wraps an existing handle.
func NewPgDMRepositoryFromDB(db *sql.DB) *PgDMRepository {
	return &PgDMRepository{conn: db}
}

func (db *PgDMRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgDMRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
