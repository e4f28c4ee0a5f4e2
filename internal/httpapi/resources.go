package httpapi

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"photobox/internal/boothcode"
	"photobox/internal/logging"
	"photobox/internal/resource"
	"photobox/internal/storage"
	"photobox/internal/store"
	"photobox/internal/validation"

	"github.com/go-chi/chi/v5"
)

type scopeFunc func(r *http.Request, p Principal) resource.Scope

func ownerScope(r *http.Request, p Principal) resource.Scope {
	return resource.Scope{ClientID: p.UserID}
}

func routeBoothScope(r *http.Request, p Principal) resource.Scope {
	return resource.Scope{ClientID: p.UserID, BoothID: chi.URLParam(r, "boothID")}
}

// selectedBoothScope serves the config routes that carry no booth id.
func selectedBoothScope(r *http.Request, p Principal) resource.Scope {
	return resource.Scope{ClientID: p.UserID, BoothID: p.Session.SelectedBooth}
}

// requireBooth answers 404 before any nested route runs against a booth the
// owner does not have. An unselected booth is left to the adapters.
func (d *Dashboard) requireBooth(scopeOf scopeFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := mustPrincipal(w, r)
			if !ok {
				return
			}
			if scope := scopeOf(r, p); scope.BoothID != "" {
				if _, err := d.Booths.GetOne(r.Context(), ownerScope(r, p), scope.BoothID); err != nil {
					writeServiceError(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resourceHandler exposes one adapter as list/get/create/put/patch/delete routes.
// PUT creates missing documents and PATCH refuses to.
type resourceHandler struct {
	adapter resource.Adapter
	scope   scopeFunc
	param   string
}

func (h resourceHandler) mount(r chi.Router) {
	item := "/{" + h.param + "}"
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get(item, h.get)
	r.Put(item, h.upsert)
	r.Patch(item, h.update)
	r.Delete(item, h.delete)
}

func (h resourceHandler) resolve(w http.ResponseWriter, r *http.Request) (resource.Scope, bool) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return resource.Scope{}, false
	}
	return h.scope(r, p), true
}

func (h resourceHandler) list(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.resolve(w, r)
	if !ok {
		return
	}
	list, err := h.adapter.GetList(r.Context(), scope)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h resourceHandler) get(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.resolve(w, r)
	if !ok {
		return
	}
	rec, err := h.adapter.GetOne(r.Context(), scope, chi.URLParam(r, h.param))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h resourceHandler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.resolve(w, r)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := h.adapter.Create(r.Context(), scope, fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h resourceHandler) upsert(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.resolve(w, r)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := h.adapter.Upsert(r.Context(), scope, chi.URLParam(r, h.param), fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h resourceHandler) update(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.resolve(w, r)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := h.adapter.UpdateExisting(r.Context(), scope, chi.URLParam(r, h.param), fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h resourceHandler) delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := h.adapter.DeleteOne(r.Context(), scope, chi.URLParam(r, h.param))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (d *Dashboard) mountBackgrounds(r chi.Router, scope scopeFunc) {
	r.Use(d.requireBooth(scope))
	resourceHandler{adapter: d.Backgrounds, scope: scope, param: "slot"}.mount(r)
	r.Post("/{slot}/image", d.handleBackgroundImage(scope))
}

func (d *Dashboard) handleAssignCode(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	code, err := d.Booths.AssignCode(r.Context(), ownerScope(r, p), chi.URLParam(r, "boothID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"boothCode": code})
}

const (
	minQRSize = 64
	maxQRSize = 1024
)

func (d *Dashboard) handleBoothQR(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	size := boothcode.DefaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < minQRSize || parsed > maxQRSize {
			writeServiceError(w, r, validation.Field("size", "range"))
			return
		}
		size = parsed
	}
	booth, err := d.Booths.GetOne(r.Context(), ownerScope(r, p), chi.URLParam(r, "boothID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	code, _ := booth["boothCode"].(string)
	if code == "" {
		writeServiceError(w, r, fmt.Errorf("%w: booth has no code", store.ErrNotFound))
		return
	}
	png, err := boothcode.QR(code, size)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (d *Dashboard) handleBackgroundImage(scopeOf scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		scope := scopeOf(r, p)
		slot := chi.URLParam(r, "slot")
		if !resource.ValidSlot(slot) {
			writeServiceError(w, r, resource.ErrInvalidSlot)
			return
		}
		if scope.BoothID == "" {
			writeServiceError(w, r, resource.ErrNoBoothSelected)
			return
		}
		file, ok := d.readUpload(w, r)
		if !ok {
			return
		}
		defer file.Close()

		prefix, err := storage.BackgroundKey(scope.ClientID, scope.BoothID, slot)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		obj, err := d.Images.PutImage(r.Context(), prefix, file, storage.BackgroundMaxWidth)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		var previous string
		if old, err := d.Backgrounds.GetOne(r.Context(), scope, slot); err == nil {
			previous, _ = old["url"].(string)
		}
		rec, err := d.Backgrounds.Upsert(r.Context(), scope, slot, map[string]any{"url": obj.URL, "is_active": true})
		if err != nil {
			_ = d.Images.Delete(r.Context(), obj.URL)
			writeServiceError(w, r, err)
			return
		}
		d.dropImage(r, previous, obj.URL)
		writeJSON(w, http.StatusOK, rec)
	}
}

// dropImage removes a replaced upload. Failures only leave an unreferenced file behind.
func (d *Dashboard) dropImage(r *http.Request, previous, current string) {
	if previous == "" || previous == current {
		return
	}
	if err := d.Images.Delete(r.Context(), previous); err != nil {
		logging.Warn().Err(err).Str("url", previous).Msg("delete replaced image")
	}
}

const multipartMemory = 8 << 20

func (d *Dashboard) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, d.Images.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, r, storage.ErrTooLarge)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form")
		return nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeServiceError(w, r, validation.Field("file", "required"))
		return nil, false
	}
	if header.Size > d.Images.MaxBytes() {
		file.Close()
		writeServiceError(w, r, storage.ErrTooLarge)
		return nil, false
	}
	return file, true
}
