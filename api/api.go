package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgeee/social-backend/api/validator"
	"github.com/edgeee/social-backend/social"
)

// A Service implements the operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, r social.Registration) (social.Profile, error)
	Login(ctx context.Context, login, password string) (social.Session, error)
	Refresh(ctx context.Context, refreshToken string) (social.Session, error)
	Authenticate(ctx context.Context, credential string) (social.User, error)
	Logout(ctx context.Context, userID string) error
	CurrentUser(ctx context.Context, userID string) (social.Profile, error)
	GetUser(ctx context.Context, userID string) (social.Author, error)
	UpdateAccount(ctx context.Context, userID string, up social.AccountUpdate) (social.Profile, error)

	CreatePost(ctx context.Context, authorID, text string, file *social.File) (social.PostView, error)
	Reply(ctx context.Context, authorID, parentID, text string) (social.PostView, error)
	GetPost(ctx context.Context, id string) (social.PostView, error)
	UpdatePost(ctx context.Context, callerID, id, text string) (social.PostView, error)
	DeletePost(ctx context.Context, callerID, id string) error
	LikePost(ctx context.Context, callerID, id string) (social.LikeResult, error)
	UnlikePost(ctx context.Context, callerID, id string) (social.LikeResult, error)
	Feed(ctx context.Context, page social.Page) ([]social.PostView, error)
	ListUserPosts(ctx context.Context, userID string, page social.Page) ([]social.PostView, error)
	ListUserReplies(ctx context.Context, userID string, page social.Page) ([]social.PostView, error)

	CreateComment(ctx context.Context, authorID, postID, text string) (social.CommentView, error)
	ReplyComment(ctx context.Context, authorID, commentID, text string) (social.CommentView, error)
	GetComment(ctx context.Context, id string) (social.CommentView, error)
	ListComments(ctx context.Context, postID string, page social.Page) ([]social.CommentView, error)
	ListCommentReplies(ctx context.Context, commentID string, page social.Page) ([]social.CommentView, error)
	UpdateComment(ctx context.Context, callerID, id, text string) (social.CommentView, error)
	DeleteComment(ctx context.Context, callerID, id string) error
	LikeComment(ctx context.Context, callerID, id string) (social.LikeResult, error)
	UnlikeComment(ctx context.Context, callerID, id string) (social.LikeResult, error)
}

// API provides the REST endpoints for the application.
type API struct {
	Logger  *slog.Logger
	Service Service
	Val     *validator.Validator

	once sync.Once
	mux  *http.ServeMux
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", a.register)
	mux.HandleFunc("POST /users/login", a.login)
	mux.HandleFunc("POST /users/token", a.refresh)
	mux.HandleFunc("GET /users/current", a.authenticated(a.currentUser))
	mux.HandleFunc("PATCH /users/current", a.authenticated(a.updateAccount))
	mux.HandleFunc("DELETE /users/logout", a.authenticated(a.logout))
	mux.HandleFunc("GET /users/{userID}", a.authenticated(a.getUser))
	mux.HandleFunc("GET /users/{userID}/posts", a.authenticated(a.listUserPosts))
	mux.HandleFunc("GET /users/{userID}/replies", a.authenticated(a.listUserReplies))

	mux.HandleFunc("GET /posts", a.authenticated(a.feed))
	mux.HandleFunc("POST /posts", a.authenticated(a.createPost))
	mux.HandleFunc("GET /posts/{postID}", a.authenticated(a.getPost))
	mux.HandleFunc("POST /posts/{postID}", a.authenticated(a.reply))
	mux.HandleFunc("PATCH /posts/{postID}", a.authenticated(a.updatePost))
	mux.HandleFunc("DELETE /posts/{postID}", a.authenticated(a.deletePost))
	mux.HandleFunc("GET /posts/{postID}/like", a.authenticated(a.likePost))
	mux.HandleFunc("DELETE /posts/{postID}/unlike", a.authenticated(a.unlikePost))
	mux.HandleFunc("GET /posts/{postID}/comments", a.authenticated(a.listComments))
	mux.HandleFunc("POST /posts/{postID}/comments", a.authenticated(a.createComment))

	mux.HandleFunc("GET /comments/{commentID}", a.authenticated(a.getComment))
	mux.HandleFunc("POST /comments/{commentID}", a.authenticated(a.replyComment))
	mux.HandleFunc("PATCH /comments/{commentID}", a.authenticated(a.updateComment))
	mux.HandleFunc("DELETE /comments/{commentID}", a.authenticated(a.deleteComment))
	mux.HandleFunc("GET /comments/{commentID}/replies", a.authenticated(a.listCommentReplies))
	mux.HandleFunc("GET /comments/{commentID}/like", a.authenticated(a.likeComment))
	mux.HandleFunc("DELETE /comments/{commentID}/unlike", a.authenticated(a.unlikeComment))

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

type envelope struct {
	Data any `json:"data"`
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondData(w http.ResponseWriter, status int, data any) {
	a.respond(w, status, envelope{Data: data})
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Errors string `json:"errors"`
	}
	if status >= http.StatusInternalServerError {
		a.Logger.Error("Error", "error", err.Error())
	} else {
		a.Logger.Info("Request failed", "status", status, "error", err.Error())
	}
	a.respond(w, status, response{Errors: msg})
}

// fail responds with the status matching the kind of err. Errors without a
// kind are reported as internal.
func (a *API) fail(w http.ResponseWriter, err error) {
	var e *social.Error
	if !errors.As(err, &e) {
		a.respondError(w, http.StatusInternalServerError, err, "Internal server error")
		return
	}
	a.respondError(w, statusOf(e.Kind), err, e.Message)
}

func statusOf(k social.Kind) int {
	switch k {
	case social.KindValidation, social.KindAlreadyLiked, social.KindNotLiked, social.KindConflict:
		return http.StatusBadRequest
	case social.KindNotFound:
		return http.StatusNotFound
	case social.KindForbidden:
		return http.StatusForbidden
	case social.KindUnauthenticated:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// decodeBody decodes and validates the JSON request body into dst. It
// responds and returns false when the body is unusable.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	if err := r.Body.Close(); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return false
	}
	return a.validateBody(w, dst)
}

func (a *API) validateBody(w http.ResponseWriter, s any) bool {
	errs := a.Val.ValidateStruct(s)
	if len(errs) > 0 {
		msg := validator.Join(errs)
		a.respondError(w, http.StatusBadRequest, errors.New(msg), msg)
		return false
	}
	return true
}

type userKey struct{}

// authenticated resolves the bearer credential of the request before calling
// next. The caller is available through caller.
func (a *API) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Service.Authenticate(r.Context(), bearer(r))
		if err != nil {
			a.fail(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, u)
		next(w, r.WithContext(ctx))
	}
}

func caller(r *http.Request) social.User {
	u, _ := r.Context().Value(userKey{}).(social.User)
	return u
}

// bearer returns the credential of the Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func bearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return h
}

// parsePage reads the before, offset and limit query parameters. numOfItems
// is accepted as an alias of limit.
func parsePage(r *http.Request) (social.Page, error) {
	var (
		p   social.Page
		err error
		q   = r.URL.Query()
	)
	if v := q.Get("before"); v != "" {
		if p.Before, err = time.Parse(time.RFC3339, v); err != nil {
			return p, social.Errorf(social.KindValidation, "before must be an RFC 3339 timestamp")
		}
	}
	if v := q.Get("offset"); v != "" {
		if p.Offset, err = strconv.Atoi(v); err != nil {
			return p, social.Errorf(social.KindValidation, "offset must be an integer")
		}
	}
	limit := q.Get("limit")
	if limit == "" {
		limit = q.Get("numOfItems")
	}
	if limit != "" {
		if p.Limit, err = strconv.Atoi(limit); err != nil {
			return p, social.Errorf(social.KindValidation, "limit must be an integer")
		}
	}
	return p, nil
}
