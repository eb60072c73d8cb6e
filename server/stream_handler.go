package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"musicbox/core/library"
	"musicbox/logger"

	"github.com/gorilla/mux"
)

// StreamHandler serves GET /music/{filename} with the raw stored bytes.
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]

	st, err := h.library.Stream(name)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) || errors.Is(err, library.ErrInvalidName) {
			http.NotFound(w, r)
			return
		}
		logger.Error("[Stream] 打开音频文件失败", logger.String("filename", name), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer st.Close()

	w.Header().Set("Content-Type", st.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(st.Size, 10))
	w.Header().Set("Last-Modified", st.ModTime.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, st); err != nil {
		logger.Debug("[Stream] 传输中断", logger.String("filename", name), logger.ErrorField(err))
	}
}
