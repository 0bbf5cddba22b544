package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/edgeee/social-backend/social"
)

// InsertUser inserts an account. The returned user holds the generated id.
func (pg *Postgres) InsertUser(ctx context.Context, u social.User) (social.User, error) {
	m := &user{
		Username: u.Username,
		Email:    u.Email,
		Name:     u.Name,
		Password: u.PasswordHash,
	}
	if _, err := pg.bun.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return social.User{}, storeErr(err, "insert")
	}
	return m.SocialUser(), nil
}

// GetUser returns the user with the given id.
func (pg *Postgres) GetUser(ctx context.Context, id string) (social.User, error) {
	var m user
	err := pg.bun.NewSelect().Model(&m).Where("u.id = ?", id).Scan(ctx)
	if err != nil {
		return social.User{}, storeErr(err, "select")
	}
	return m.SocialUser(), nil
}

// FindUserByLogin returns the user whose username or email equals login.
func (pg *Postgres) FindUserByLogin(ctx context.Context, login string) (social.User, error) {
	var m user
	err := pg.bun.NewSelect().
		Model(&m).
		Where("u.username = ?", login).
		WhereOr("u.email = ?", strings.ToLower(login)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return social.User{}, storeErr(err, "select")
	}
	return m.SocialUser(), nil
}

// FindUserByToken returns the user holding the session token.
func (pg *Postgres) FindUserByToken(ctx context.Context, token string) (social.User, error) {
	var m user
	err := pg.bun.NewSelect().Model(&m).Where("u.token = ?", token).Scan(ctx)
	if err != nil {
		return social.User{}, storeErr(err, "select")
	}
	return m.SocialUser(), nil
}

// UpdateUser stores the profile fields and password of u.
func (pg *Postgres) UpdateUser(ctx context.Context, u social.User) (social.User, error) {
	m := &user{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Name:     u.Name,
		Password: u.PasswordHash,
	}
	res, err := pg.bun.NewUpdate().
		Model(m).
		Column("username", "email", "name", "password").
		Set("updated_at = now()").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		return social.User{}, storeErr(err, "update")
	}
	if err := mustAffect(res); err != nil {
		return social.User{}, err
	}
	return m.SocialUser(), nil
}

// SetUserToken stores the session token of a user. An empty token stores NULL.
func (pg *Postgres) SetUserToken(ctx context.Context, id, token string) error {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("token = ?", sql.NullString{String: token, Valid: token != ""}).
		Set("updated_at = now()").
		Where("u.id = ?", id).
		Exec(ctx)
	if err != nil {
		return storeErr(err, "update token")
	}
	return mustAffect(res)
}

// ListAuthors returns the summaries of the given users.
func (pg *Postgres) ListAuthors(ctx context.Context, ids []string) ([]social.Author, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var us []user
	err := pg.bun.NewSelect().
		Model(&us).
		Column("u.id", "u.username", "u.name").
		Where("u.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]social.Author, len(us))
	for i, u := range us {
		out[i] = u.SocialUser().Author()
	}
	return out, nil
}
