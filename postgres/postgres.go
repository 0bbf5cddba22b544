package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/edgeee/social-backend/social"
)

// Postgres provides storage in PostgreSQL for users, posts, post likes and
// attachments.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the underlying connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// CreateSchema creates the tables and indexes when they do not exist yet.
func (pg *Postgres) CreateSchema(ctx context.Context) error {
	tables := []struct {
		model any
		fks   []string
	}{
		{model: (*user)(nil)},
		{model: (*post)(nil), fks: []string{
			`("user_id") REFERENCES "users" ("id")`,
			`("parent_id") REFERENCES "posts" ("id")`,
		}},
		{model: (*postLike)(nil), fks: []string{
			`("post_id") REFERENCES "posts" ("id")`,
			`("user_id") REFERENCES "users" ("id")`,
		}},
		{model: (*file)(nil), fks: []string{
			`("post_id") REFERENCES "posts" ("id")`,
		}},
	}
	for _, t := range tables {
		q := pg.bun.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.fks {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*post)(nil), "posts_created_at_idx", []string{"created_at DESC", "id DESC"}},
		{(*post)(nil), "posts_user_id_created_at_idx", []string{"user_id", "created_at DESC"}},
		{(*post)(nil), "posts_parent_id_created_at_idx", []string{"parent_id", "created_at DESC"}},
	}
	for _, idx := range indexes {
		_, err := pg.bun.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			ColumnExpr(strings.Join(idx.columns, ", ")).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// pgCode returns the SQLSTATE of a PostgreSQL error.
func pgCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// storeErr translates driver errors into social sentinels. A malformed uuid
// cannot match any row, so it is reported as not found.
func storeErr(err error, verb string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return social.ErrNotFound
	}
	switch pgCode(err) {
	case codeInvalidText, codeForeignKeyViolation:
		return fmt.Errorf("%s: %w", verb, social.ErrNotFound)
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w", verb, social.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", verb, err)
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return social.ErrNotFound
	}
	return nil
}
