// Package auth implements the session schemes accepted by the API.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/edgeee/social-backend/social"
)

// Tokens issues opaque random tokens stored on the user row.
type Tokens struct {
	Users social.UserStore
}

// Issue generates a new token for u, replacing any previous one. Opaque tokens
// do not expire, so no refresh token is issued.
func (t Tokens) Issue(ctx context.Context, u social.User) (social.Session, error) {
	token := uuid.NewString()
	if err := t.Users.SetUserToken(ctx, u.ID, token); err != nil {
		return social.Session{}, fmt.Errorf("store token: %w", err)
	}
	return social.Session{Token: token}, nil
}

// Resolve returns the user holding token.
func (t Tokens) Resolve(ctx context.Context, token string) (social.User, error) {
	if token == "" {
		return social.User{}, social.ErrNotFound
	}
	u, err := t.Users.FindUserByToken(ctx, token)
	if err != nil {
		return social.User{}, fmt.Errorf("find token: %w", err)
	}
	return u, nil
}

// Refresh always fails.
func (t Tokens) Refresh(context.Context, string) (string, error) {
	return "", fmt.Errorf("opaque tokens cannot be refreshed: %w", social.ErrNotFound)
}

// Revoke clears the token of u.
func (t Tokens) Revoke(ctx context.Context, u social.User) error {
	return t.Users.SetUserToken(ctx, u.ID, "")
}

// Claims are carried by the tokens issued by JWT.
type Claims struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// refreshAudience marks refresh tokens.
const refreshAudience = "refresh"

// JWT issues HS256 access tokens and, when RefreshSecret is set, refresh
// tokens signed with it. Both carry the same token id, which is stored on the
// user so that a logout revokes every token issued before it.
type JWT struct {
	Users         social.UserStore
	Secret        []byte
	RefreshSecret []byte
	TTL           time.Duration
	RefreshTTL    time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (j JWT) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j JWT) sign(u social.User, id string, secret []byte, ttl time.Duration, audience ...string) (string, error) {
	now := j.now()
	claims := Claims{
		Username: u.Username,
		Name:     u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   u.ID,
			Audience:  audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verify parses token and returns the user it was issued to when its id is
// still the one stored on the user.
func (j JWT) verify(ctx context.Context, token string, secret []byte, opts ...jwt.ParserOption) (social.User, error) {
	var claims Claims
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return secret, nil }, opts...)
	if err != nil {
		return social.User{}, fmt.Errorf("parse token: %w: %w", social.ErrNotFound, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return social.User{}, fmt.Errorf("incomplete claims: %w", social.ErrNotFound)
	}

	u, err := j.Users.GetUser(ctx, claims.Subject)
	if err != nil {
		return social.User{}, fmt.Errorf("get subject: %w", err)
	}
	if u.Token != claims.ID {
		return social.User{}, fmt.Errorf("revoked token: %w", social.ErrNotFound)
	}
	return u, nil
}

// Issue signs a session for u.
func (j JWT) Issue(ctx context.Context, u social.User) (social.Session, error) {
	var (
		sess social.Session
		err  error
		id   = uuid.NewString()
	)
	if sess.Token, err = j.sign(u, id, j.Secret, j.TTL); err != nil {
		return social.Session{}, fmt.Errorf("sign token: %w", err)
	}
	if len(j.RefreshSecret) > 0 {
		if sess.RefreshToken, err = j.sign(u, id, j.RefreshSecret, j.RefreshTTL, refreshAudience); err != nil {
			return social.Session{}, fmt.Errorf("sign refresh token: %w", err)
		}
	}
	if err := j.Users.SetUserToken(ctx, u.ID, id); err != nil {
		return social.Session{}, fmt.Errorf("store token id: %w", err)
	}
	return sess, nil
}

// Refresh signs a new access token with the id of the refresh token.
func (j JWT) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if len(j.RefreshSecret) == 0 {
		return "", fmt.Errorf("refresh disabled: %w", social.ErrNotFound)
	}
	u, err := j.verify(ctx, refreshToken, j.RefreshSecret, jwt.WithAudience(refreshAudience))
	if err != nil {
		return "", err
	}
	token, err := j.sign(u, u.Token, j.Secret, j.TTL)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Resolve verifies an access token and returns its subject.
func (j JWT) Resolve(ctx context.Context, token string) (social.User, error) {
	return j.verify(ctx, token, j.Secret)
}

// Revoke forgets the stored token id of u.
func (j JWT) Revoke(ctx context.Context, u social.User) error {
	return j.Users.SetUserToken(ctx, u.ID, "")
}

// Options configure the JWT scheme.
type Options struct {
	Secret        []byte
	RefreshSecret []byte
	TTL           time.Duration
	RefreshTTL    time.Duration
}

// New returns the session scheme named by scheme.
func New(scheme string, users social.UserStore, opts Options) (social.Sessions, error) {
	switch scheme {
	case "jwt":
		if len(opts.Secret) == 0 || len(opts.RefreshSecret) == 0 {
			return nil, errors.New("jwt scheme needs a secret and a refresh secret")
		}
		if bytes.Equal(opts.Secret, opts.RefreshSecret) {
			return nil, errors.New("jwt refresh secret must differ from the secret")
		}
		return JWT{
			Users:         users,
			Secret:        opts.Secret,
			RefreshSecret: opts.RefreshSecret,
			TTL:           opts.TTL,
			RefreshTTL:    opts.RefreshTTL,
		}, nil
	case "token":
		return Tokens{Users: users}, nil
	}
	return nil, fmt.Errorf("unknown auth scheme %q", scheme)
}
