package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"musicbox/core/access"
	"musicbox/core/library"
	"musicbox/logger"
	"musicbox/model"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

// multipart parts larger than this are spooled to temporary files
const multipartMemory = 8 << 20

// IndexHandler renders the track listing with optional ?q= search.
func (h *APIHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	data := h.newPageData(w, r)
	data.Query = strings.TrimSpace(r.URL.Query().Get("q"))

	tracks, err := h.library.List(r.Context(), data.Query)
	if err != nil {
		logger.Error("[Index] 获取曲目列表失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data.Tracks = make([]trackView, 0, len(tracks))
	for _, t := range tracks {
		data.Tracks = append(data.Tracks, trackView{Track: t, CanDelete: access.CanDelete(t, data.Actor)})
	}
	exts := make([]string, 0, len(h.cfg.AllowedExtensions))
	for _, ext := range h.cfg.AllowedExtensions {
		exts = append(exts, "."+ext)
	}
	data.Accept = strings.Join(exts, ",")

	render(w, h.pages.index, http.StatusOK, data)
}

// MusicListHandler serves GET /api/music.
func (h *APIHandler) MusicListHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.library.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		logger.Error("[API] 获取曲目列表失败", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tracks"})
		return
	}
	resp := make([]model.TrackResponse, 0, len(tracks))
	for _, t := range tracks {
		resp = append(resp, t.ToResponse())
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadMessage maps a pipeline error onto the message shown to the user.
func (h *APIHandler) uploadMessage(err error) string {
	switch {
	case errors.Is(err, library.ErrUnauthorized):
		return "Please log in to upload music."
	case errors.Is(err, library.ErrInvalidField):
		return "Title must be at most 100 characters."
	case errors.Is(err, library.ErrMissingField):
		return "Please provide a title and choose a music file."
	case errors.Is(err, library.ErrUnsupportedFormat):
		return "Unsupported file format. Allowed formats: " + strings.Join(h.cfg.AllowedExtensions, ", ") + "."
	default:
		return "Upload failed. Please try again."
	}
}

// UploadHandler runs the upload pipeline for POST /upload.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	actor := access.FromContext(r.Context())
	tooLargeMsg := fmt.Sprintf("File is too large. The limit is %s.", humanize.IBytes(uint64(h.cfg.MaxContentLength)))
	if r.ContentLength > h.cfg.MaxContentLength {
		logger.Warn("[Upload] 请求体过大", logger.Int64("contentLength", r.ContentLength), logger.Int64("userId", actor.ID))
		addFlash(w, tooLargeMsg)
		redirect(w, r, "/")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxContentLength)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("[Upload] 请求体过大", logger.Int64("limit", tooLarge.Limit), logger.Int64("userId", actor.ID))
			addFlash(w, tooLargeMsg)
		} else {
			logger.Warn("[Upload] 解析表单失败", logger.ErrorField(err))
			addFlash(w, h.uploadMessage(library.ErrMissingField))
		}
		redirect(w, r, "/")
		return
	}
	defer r.MultipartForm.RemoveAll()
	if !h.validCSRF(r) {
		csrfRejected(w, r)
		return
	}

	req := library.UploadRequest{Title: r.PostFormValue("title")}
	file, header, err := r.FormFile("music_file")
	switch {
	case err == nil:
		defer file.Close()
		req.Filename = header.Filename
		req.Body = file
	case errors.Is(err, http.ErrMissingFile):
		// Body stays nil and the pipeline rejects the request
	default:
		logger.Warn("[Upload] 读取上传文件失败", logger.ErrorField(err))
	}

	track, err := h.library.Upload(r.Context(), actor, req)
	if err != nil {
		if library.StateOf(err) == library.StateFailed {
			logger.Error("[Upload] 上传失败", logger.Int64("userId", actor.ID), logger.ErrorField(err))
		}
		addFlash(w, h.uploadMessage(err))
		redirect(w, r, "/")
		return
	}

	addFlash(w, fmt.Sprintf("%q uploaded.", track.Title))
	redirect(w, r, "/")
}

// DeleteHandler handles POST /delete/{id}.
func (h *APIHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	track, err := h.library.Delete(r.Context(), access.FromContext(r.Context()), id)
	switch {
	case err == nil:
		addFlash(w, fmt.Sprintf("%q deleted.", track.Title))
	case errors.Is(err, library.ErrNotFound):
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	case errors.Is(err, library.ErrUnauthorized):
		addFlash(w, "Please log in to delete tracks.")
		redirect(w, r, "/auth/login")
		return
	case errors.Is(err, library.ErrForbidden):
		addFlash(w, "You can only delete your own tracks.")
	default:
		logger.Error("[Delete] 删除曲目失败", logger.Int64("trackId", id), logger.ErrorField(err))
		addFlash(w, "Could not delete the track. Please try again.")
	}
	redirect(w, r, "/")
}
