package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lost-and-found/internal/middleware"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/service"
)

// AdminHandler bundles the moderation, support inbox and dashboard
// endpoints. Every route is mounted behind middleware.AdminOnly, so the
// actor is either a signed-in admin or model.SystemActor.
type AdminHandler struct {
	Auth  *service.AuthStore
	Convs *service.ConversationStore
	Items *service.ItemStore
}

func NewAdminHandler(a *service.AuthStore, convs *service.ConversationStore, items *service.ItemStore) *AdminHandler {
	if a == nil || convs == nil || items == nil {
		panic("nil store passed to NewAdminHandler")
	}
	return &AdminHandler{Auth: a, Convs: convs, Items: items}
}

type editUserReq struct {
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
}
type banReq struct {
	Duration string `json:"duration"` // Go duration, "none" or "permanent"; empty means 24h
	Reason   string `json:"reason"`
}

func userParam(c echo.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	return id, id != ""
}

// Users lists every account, oldest first.
func (h *AdminHandler) Users(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	users, err := h.Auth.GetAllUsers(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "list users failed")
	}
	return c.JSON(http.StatusOK, users)
}

// EditUser changes an account's display name and role.
func (h *AdminHandler) EditUser(c echo.Context) error {
	id, ok := userParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req editUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Auth.EditUser(ctx, middleware.UserID(c), id, req.FullName, req.Role)
	if err != nil {
		return fail(c, err, "edit user failed")
	}
	return c.JSON(http.StatusOK, u)
}

// Ban bans an account for the given duration.
func (h *AdminHandler) Ban(c echo.Context) error {
	id, ok := userParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req banReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Auth.BanUser(ctx, middleware.UserID(c), id, req.Duration, req.Reason)
	if err != nil {
		return fail(c, err, "ban user failed")
	}
	return c.JSON(http.StatusOK, u)
}

// Unban lifts a ban.
func (h *AdminHandler) Unban(c echo.Context) error {
	id, ok := userParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Auth.UnbanUser(ctx, middleware.UserID(c), id)
	if err != nil {
		return fail(c, err, "unban user failed")
	}
	return c.JSON(http.StatusOK, u)
}

// Delete soft deletes an account together with its items, conversations
// and messages.
func (h *AdminHandler) Delete(c echo.Context) error {
	id, ok := userParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Auth.DeleteUser(ctx, middleware.UserID(c), id)
	if err != nil {
		return fail(c, err, "delete user failed")
	}
	return c.JSON(http.StatusOK, u)
}

// Restore reverses Delete.
func (h *AdminHandler) Restore(c echo.Context) error {
	id, ok := userParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Auth.RestoreUser(ctx, middleware.UserID(c), id)
	if err != nil {
		return fail(c, err, "restore user failed")
	}
	return c.JSON(http.StatusOK, u)
}

// Support returns one page of the support inbox. Query parameters: page
// and page_size.
func (h *AdminHandler) Support(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	page, err := h.Convs.ListAdminSupport(ctx,
		queryInt(c, "page", service.DefaultPage),
		queryInt(c, "page_size", service.DefaultPageSize))
	if err != nil {
		return fail(c, err, "list support conversations failed")
	}
	return c.JSON(http.StatusOK, page)
}

// Stats returns the dashboard figures.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	st, err := h.Items.Stats(ctx)
	if err != nil {
		return fail(c, err, "compute stats failed")
	}
	return c.JSON(http.StatusOK, st)
}
