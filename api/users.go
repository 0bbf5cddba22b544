package api

import (
	"net/http"

	"github.com/edgeee/social-backend/social"
)

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Username string `json:"username" validate:"required,alphanum,max=30"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
		Name     string `json:"name" validate:"required,max=100"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	p, err := a.Service.Register(r.Context(), social.Registration{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusCreated, p)
}

// session is the body of login and refresh responses.
type session struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	sess, err := a.Service.Login(r.Context(), body.Login, body.Password)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, session{Token: sess.Token, RefreshToken: sess.RefreshToken})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Token string `json:"token" validate:"required"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	sess, err := a.Service.Refresh(r.Context(), body.Token)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, session{Token: sess.Token})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.Logout(r.Context(), caller(r).ID); err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, "OK")
}

func (a *API) currentUser(w http.ResponseWriter, r *http.Request) {
	p, err := a.Service.CurrentUser(r.Context(), caller(r).ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, p)
}

func (a *API) updateAccount(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Username string `json:"username" validate:"omitempty,alphanum,max=30"`
		Email    string `json:"email" validate:"omitempty,email"`
		Password string `json:"password" validate:"omitempty,min=6"`
		Name     string `json:"name" validate:"omitempty,max=100"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	p, err := a.Service.UpdateAccount(r.Context(), caller(r).ID, social.AccountUpdate{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, p)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.Service.GetUser(r.Context(), r.PathValue("userID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, u)
}

func (a *API) listUserPosts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	posts, err := a.Service.ListUserPosts(r.Context(), r.PathValue("userID"), page)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, posts)
}

func (a *API) listUserReplies(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	posts, err := a.Service.ListUserReplies(r.Context(), r.PathValue("userID"), page)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, posts)
}
