package api

import "net/http"

type commentRequest struct {
	Description string `json:"description" validate:"required,max=140"`
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request) {
	var body commentRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	c, err := a.Service.CreateComment(r.Context(), caller(r).ID, r.PathValue("postID"), body.Description)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusCreated, c)
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	cs, err := a.Service.ListComments(r.Context(), r.PathValue("postID"), page)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, cs)
}

func (a *API) listCommentReplies(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	cs, err := a.Service.ListCommentReplies(r.Context(), r.PathValue("commentID"), page)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, cs)
}

func (a *API) replyComment(w http.ResponseWriter, r *http.Request) {
	var body commentRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	c, err := a.Service.ReplyComment(r.Context(), caller(r).ID, r.PathValue("commentID"), body.Description)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusCreated, c)
}

func (a *API) getComment(w http.ResponseWriter, r *http.Request) {
	c, err := a.Service.GetComment(r.Context(), r.PathValue("commentID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, c)
}

func (a *API) updateComment(w http.ResponseWriter, r *http.Request) {
	var body commentRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	c, err := a.Service.UpdateComment(r.Context(), caller(r).ID, r.PathValue("commentID"), body.Description)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, c)
}

func (a *API) deleteComment(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.DeleteComment(r.Context(), caller(r).ID, r.PathValue("commentID")); err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, "OK")
}

func (a *API) likeComment(w http.ResponseWriter, r *http.Request) {
	res, err := a.Service.LikeComment(r.Context(), caller(r).ID, r.PathValue("commentID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, res)
}

func (a *API) unlikeComment(w http.ResponseWriter, r *http.Request) {
	res, err := a.Service.UnlikeComment(r.Context(), caller(r).ID, r.PathValue("commentID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondData(w, http.StatusOK, res)
}
