package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lost-and-found/internal/middleware"
	"github.com/iliyamo/lost-and-found/internal/service"
)

// ItemHandler serves item listings, posting and claiming.
type ItemHandler struct {
	Items    *service.ItemStore
	Convs    *service.ConversationStore
	Messages *service.MessageStore
}

func NewItemHandler(items *service.ItemStore, convs *service.ConversationStore, msgs *service.MessageStore) *ItemHandler {
	if items == nil || convs == nil || msgs == nil {
		panic("nil store passed to NewItemHandler")
	}
	return &ItemHandler{Items: items, Convs: convs, Messages: msgs}
}

// List returns live items, newest first. Query parameters: status
// (lost|found), include_claimed=true and limit.
func (h *ItemHandler) List(c echo.Context) error {
	return h.list(c, "", false)
}

// Mine lists the caller's own posts, claimed ones included by default.
func (h *ItemHandler) Mine(c echo.Context) error {
	return h.list(c, middleware.UserID(c), true)
}

func (h *ItemHandler) list(c echo.Context, owner string, claimed bool) error {
	f := service.ItemFilter{
		Status:  strings.ToLower(strings.TrimSpace(c.QueryParam("status"))),
		OwnerID: owner,
		Limit:   queryInt(c, "limit", 0),
	}
	f.IncludeClaimed = claimed
	if v, err := strconv.ParseBool(c.QueryParam("include_claimed")); err == nil {
		f.IncludeClaimed = v
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.Items.List(ctx, f)
	if err != nil {
		return fail(c, err, "list items failed")
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns one item.
func (h *ItemHandler) Get(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	it, err := h.Items.Get(ctx, id)
	if err != nil {
		return fail(c, err, "load item failed")
	}
	return c.JSON(http.StatusOK, it)
}

// Create posts an item as the caller.
func (h *ItemHandler) Create(c echo.Context) error {
	var req service.NewItem
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	it, err := h.Items.Create(ctx, req, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "create item failed")
	}
	return c.JSON(http.StatusCreated, it)
}

// Claim records the caller as the claimer.
func (h *ItemHandler) Claim(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	it, err := h.Items.Claim(ctx, id, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "claim item failed")
	}
	return c.JSON(http.StatusOK, it)
}

// Unclaim clears the claimer. Only the poster, the claimer or an admin may
// do it.
func (h *ItemHandler) Unclaim(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	it, err := h.Items.Get(ctx, id)
	if err != nil {
		return fail(c, err, "load item failed")
	}
	uid := middleware.UserID(c)
	if !middleware.IsAdmin(c) && it.UserID != uid && it.ClaimedBy != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if it, err = h.Items.Unclaim(ctx, id); err != nil {
		return fail(c, err, "unclaim item failed")
	}
	return c.JSON(http.StatusOK, it)
}

// Updating lists the item ids with a claim change in flight.
func (h *ItemHandler) Updating(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"item_ids": h.Items.Updating()})
}

// Conversations lists the conversations about an item for its poster or an
// admin.
func (h *ItemHandler) Conversations(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	it, err := h.Items.Get(ctx, id)
	if err != nil {
		return fail(c, err, "load item failed")
	}
	if !middleware.IsAdmin(c) && it.UserID != middleware.UserID(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	convs, err := h.Convs.ListForItem(ctx, id)
	if err != nil {
		return fail(c, err, "list conversations failed")
	}
	return c.JSON(http.StatusOK, convs)
}

// Unread counts the messages about an item the caller has not read.
func (h *ItemHandler) Unread(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	n, err := h.Messages.UnreadForItem(ctx, id, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "count unread failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"item_id": id, "unread": n})
}

// Contacts counts the distinct people who asked about an item.
func (h *ItemHandler) Contacts(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	n, err := h.Convs.CountDistinctContacts(ctx, id)
	if err != nil {
		return fail(c, err, "count contacts failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"item_id": id, "contacts": n})
}
