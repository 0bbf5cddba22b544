package api

import (
	"net/http"

	"github.com/edgeee/social-backend/social"
)

type textRequest struct {
	Text string `json:"text" validate:"required,max=140"`
}

func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	type (
		fileRequest struct {
			Location string         `json:"location" validate:"required,max=2048"`
			Meta     map[string]any `json:"meta"`
		}
		request struct {
			Text string       `json:"text" validate:"required,max=140"`
			File *fileRequest `json:"file"`
		}
	)

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	var file *social.File
	if body.File != nil {
		file = &social.File{Location: body.File.Location, Meta: body.File.Meta}
	}
	post, err := a.Service.CreatePost(r.Context(), caller(r).ID, body.Text, file)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusCreated, post)
}

func (a *API) reply(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	post, err := a.Service.Reply(r.Context(), caller(r).ID, r.PathValue("postID"), body.Text)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusCreated, post)
}

func (a *API) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.Service.GetPost(r.Context(), r.PathValue("postID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, post)
}

func (a *API) updatePost(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	post, err := a.Service.UpdatePost(r.Context(), caller(r).ID, r.PathValue("postID"), body.Text)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, post)
}

func (a *API) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.DeletePost(r.Context(), caller(r).ID, r.PathValue("postID")); err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, "OK")
}

func (a *API) likePost(w http.ResponseWriter, r *http.Request) {
	res, err := a.Service.LikePost(r.Context(), caller(r).ID, r.PathValue("postID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, res)
}

func (a *API) unlikePost(w http.ResponseWriter, r *http.Request) {
	res, err := a.Service.UnlikePost(r.Context(), caller(r).ID, r.PathValue("postID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, res)
}

func (a *API) feed(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	posts, err := a.Service.Feed(r.Context(), page)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.Logger.Info("Feed assembled", "count", len(posts))
	a.respondData(w, http.StatusOK, posts)
}
