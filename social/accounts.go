package social

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Registration holds the fields of a new account.
type Registration struct {
	Username string
	Email    string
	Password string
	Name     string
}

// AccountUpdate holds the fields to change on an account. Empty fields are
// left unchanged.
type AccountUpdate struct {
	Username string
	Email    string
	Password string
	Name     string
}

var (
	errBadCredentials  = Errorf(KindUnauthenticated, "Username or password wrong")
	errBadRefreshToken = Errorf(KindUnauthenticated, "Invalid refresh token")
)

func userNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return Errorf(KindNotFound, "User is not found")
	}
	return err
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, r Registration) (Profile, error) {
	if r.Username == "" || r.Email == "" || r.Password == "" || r.Name == "" {
		return Profile{}, Errorf(KindValidation, "username, email, password and name are required")
	}
	hash, err := hashPassword(r.Password)
	if err != nil {
		return Profile{}, err
	}

	u, err := s.Users.InsertUser(ctx, User{
		Username:     r.Username,
		Email:        strings.ToLower(r.Email),
		Name:         r.Name,
		PasswordHash: hash,
	})
	if errors.Is(err, ErrDuplicate) {
		return Profile{}, Errorf(KindConflict, "Username or Email already exists")
	}
	if err != nil {
		return Profile{}, fmt.Errorf("insert user: %w", err)
	}
	s.Logger.Info("User registered", "user_id", u.ID)
	return u.Profile(), nil
}

// Login checks the credentials and issues a session. login may be either the
// username or the email.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	u, err := s.Users.FindUserByLogin(ctx, login)
	if errors.Is(err, ErrNotFound) {
		return Session{}, errBadCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, errBadCredentials
	}

	sess, err := s.Sessions.Issue(ctx, u)
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	return sess, nil
}

// Refresh issues a new access token from a refresh token handed out by Login.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, errBadRefreshToken
	}
	token, err := s.Sessions.Refresh(ctx, refreshToken)
	if errors.Is(err, ErrNotFound) {
		return Session{}, errBadRefreshToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("refresh session: %w", err)
	}
	return Session{Token: token}, nil
}

// Authenticate resolves a bearer credential to its user.
func (s *Service) Authenticate(ctx context.Context, credential string) (User, error) {
	if credential == "" {
		return User{}, Errorf(KindUnauthenticated, "Unauthorized")
	}
	u, err := s.Sessions.Resolve(ctx, credential)
	if errors.Is(err, ErrNotFound) {
		return User{}, Errorf(KindUnauthenticated, "Unauthorized")
	}
	if err != nil {
		return User{}, fmt.Errorf("resolve session: %w", err)
	}
	return u, nil
}

// Logout revokes the session of a user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	u, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return userNotFound(err)
	}
	if err := s.Sessions.Revoke(ctx, u); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CurrentUser returns the profile of the caller.
func (s *Service) CurrentUser(ctx context.Context, userID string) (Profile, error) {
	u, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, userNotFound(err)
	}
	return u.Profile(), nil
}

// GetUser returns the public summary of a user.
func (s *Service) GetUser(ctx context.Context, userID string) (Author, error) {
	u, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return Author{}, userNotFound(err)
	}
	return u.Author(), nil
}

// UpdateAccount changes the caller's account.
func (s *Service) UpdateAccount(ctx context.Context, userID string, up AccountUpdate) (Profile, error) {
	u, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, userNotFound(err)
	}

	if up.Username != "" {
		u.Username = up.Username
	}
	if up.Email != "" {
		u.Email = strings.ToLower(up.Email)
	}
	if up.Name != "" {
		u.Name = up.Name
	}
	if up.Password != "" {
		if u.PasswordHash, err = hashPassword(up.Password); err != nil {
			return Profile{}, err
		}
	}

	u, err = s.Users.UpdateUser(ctx, u)
	if errors.Is(err, ErrDuplicate) {
		return Profile{}, Errorf(KindConflict, "Username or Email already exists")
	}
	if err != nil {
		return Profile{}, userNotFound(fmt.Errorf("update user: %w", err))
	}
	return u.Profile(), nil
}
