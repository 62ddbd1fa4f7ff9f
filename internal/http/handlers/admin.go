package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLogin exchanges the configured admin credentials for the static
// bearer token guarding the file-management routes.
func (a *App) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrValidation, "invalid payload")
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.Config.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.Config.AdminPass)) == 1
	if !userOK || !passOK {
		a.json(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"token": a.Config.AdminToken})
}

type adminFile struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// AdminFiles merges the image and video listings into one sequence tagged by
// type.
func (a *App) AdminFiles(w http.ResponseWriter, r *http.Request) {
	files := []adminFile{}
	for _, category := range []struct {
		kind   string
		prefix string
	}{
		{kind: "image", prefix: "images"},
		{kind: "video", prefix: "videos"},
	} {
		objects, err := a.Sink.List(r.Context(), category.prefix)
		if err != nil {
			a.Logger.Error().Err(err).Str("prefix", category.prefix).Msg("admin: listing failed")
			a.error(w, http.StatusInternalServerError, domain.ErrInternal, "failed to list files")
			return
		}
		for _, obj := range objects {
			files = append(files, adminFile{Type: category.kind, Name: obj.Name})
		}
	}
	a.json(w, http.StatusOK, map[string]any{"files": files})
}

// AdminPreview redirects to the object's public URL.
func (a *App) AdminPreview(w http.ResponseWriter, r *http.Request) {
	key, err := adminObjectKey(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrValidation, err.Error())
		return
	}
	http.Redirect(w, r, a.Sink.PublicURL(key), http.StatusFound)
}

// AdminDelete removes a stored object; a missing object reports not found
// rather than silent success.
func (a *App) AdminDelete(w http.ResponseWriter, r *http.Request) {
	key, err := adminObjectKey(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrValidation, err.Error())
		return
	}
	if err := a.Sink.Remove(r.Context(), key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.notFound(w, "file not found")
			return
		}
		a.Logger.Error().Err(err).Str("key", key).Msg("admin: delete failed")
		a.error(w, http.StatusInternalServerError, domain.ErrInternal, "failed to delete file")
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"success": true})
}

func adminObjectKey(r *http.Request) (string, error) {
	fileType := chi.URLParam(r, "type")
	fileName := chi.URLParam(r, "filename")

	var prefix string
	switch fileType {
	case "image":
		prefix = "images"
	case "video":
		prefix = "videos"
	default:
		return "", fmt.Errorf("unknown file type %q", fileType)
	}
	if fileName == "" || strings.ContainsAny(fileName, "/\\") || strings.Contains(fileName, "..") {
		return "", fmt.Errorf("invalid file name")
	}
	return prefix + "/" + fileName, nil
}
