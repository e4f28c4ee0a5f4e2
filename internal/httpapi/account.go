package httpapi

import (
	"net/http"
	"strings"

	"photobox/internal/account"
	"photobox/internal/storage"

	"github.com/go-chi/chi/v5"
)

type xenditKeyRequest struct {
	Key string `json:"xendit_api_key"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (d *Dashboard) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	user, err := d.Accounts.Get(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (d *Dashboard) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req account.ProfileUpdate
	if !decodeRequest(w, r, &req) {
		return
	}
	user, err := d.Accounts.UpdateProfile(r.Context(), p.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (d *Dashboard) handleProfilePicture(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	file, ok := d.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	prefix, err := storage.ProfilePictureKey(p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	obj, err := d.Images.PutImage(r.Context(), prefix, file, storage.ProfilePictureMaxWidth)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	previous := p.Session.Snapshot.ProfilePictureURL
	user, err := d.Accounts.SetProfilePicture(r.Context(), p.UserID, obj.URL)
	if err != nil {
		_ = d.Images.Delete(r.Context(), obj.URL)
		writeServiceError(w, r, err)
		return
	}
	d.dropImage(r, previous, obj.URL)
	writeJSON(w, http.StatusOK, user)
}

func (d *Dashboard) handleGetXenditKey(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	configured, err := d.Accounts.HasXenditKey(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": configured})
}

func (d *Dashboard) handleSetXenditKey(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req xenditKeyRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := d.Accounts.SetXenditKey(r.Context(), p.UserID, req.Key); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": true})
}

func (d *Dashboard) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := d.Accounts.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users, "total": len(users)})
}

func (d *Dashboard) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	user, err := d.Accounts.SetRole(r.Context(), chi.URLParam(r, "userID"), strings.TrimSpace(req.Role))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
