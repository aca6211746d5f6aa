package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/service"
)

// PermissionHandler is the HTTP face of permission administration. Every
// route sits behind Guards.AdminOnly.
//
// HTTP:
//
//	GET    /api/admin/permissions?user=@ed     → {userId, login, permissions}
//	GET    /api/admin/permissions?name=admin   → {name, holders}
//	POST   /api/admin/permissions  {user, permission} → {userId, login, permissions}
//	DELETE /api/admin/permissions  {user, permission} → {removed}
type PermissionHandler struct {
	service *service.PermissionService
	logger  *slog.Logger
}

func NewPermissionHandler(svc *service.PermissionService, logger *slog.Logger) *PermissionHandler {
	return &PermissionHandler{service: svc, logger: logger}
}

type permissionRequest struct {
	User       string `json:"user"`
	Permission string `json:"permission"`
}

type permissionHolders struct {
	Name    string   `json:"name"`
	Holders []string `json:"holders"`
}

type revokeResult struct {
	Removed int64 `json:"removed"`
}

// HandleShow lists either one user's permissions or one permission's holders.
func (h *PermissionHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user, name := q.Get("user"), q.Get("name")

	switch {
	case user != "" && name == "":
		perms, err := h.service.ShowUser(r.Context(), user)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, perms)
	case name != "" && user == "":
		holders, err := h.service.ShowPermission(r.Context(), name)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, permissionHolders{Name: name, Holders: holders})
	default:
		writeError(w, h.logger, apperror.ValidationFailed("query", "pass exactly one of user or name"))
	}
}

// HandleGrant grants a permission, pre-provisioning the user from GitHub when
// the login has never been seen.
func (h *PermissionHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	perms, err := h.service.Grant(r.Context(), req.User, req.Permission)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("permission granted over HTTP",
		slog.String("by", adminFrom(r.Context()).External.Login),
		slog.String("permission", req.Permission),
		slog.Int64("user_id", perms.UserID),
	)
	writeJSON(w, http.StatusOK, perms)
}

// HandleRevoke removes a permission. Revoking something never granted
// answers {"removed": 0}.
func (h *PermissionHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	n, err := h.service.Revoke(r.Context(), req.User, req.Permission)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResult{Removed: n})
}
