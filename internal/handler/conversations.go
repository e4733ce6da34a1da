package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/logger"
	"github.com/iliyamo/lost-and-found/internal/middleware"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/service"
)

// Stream tuning.
const (
	streamBuffer = 64
	streamPing   = 25 * time.Second
)

// ConversationHandler serves conversations and their messages, including
// the server-sent event stream of new messages.
type ConversationHandler struct {
	Items *service.ItemStore
	Convs *service.ConversationStore
	Msgs  *service.MessageStore
}

func NewConversationHandler(items *service.ItemStore, convs *service.ConversationStore, msgs *service.MessageStore) *ConversationHandler {
	if items == nil || convs == nil || msgs == nil {
		panic("nil store passed to NewConversationHandler")
	}
	return &ConversationHandler{Items: items, Convs: convs, Msgs: msgs}
}

type contactReq struct {
	ItemID int64 `json:"item_id"`
}
type sendReq struct {
	Message string `json:"message"`
}

// Contact opens (or reuses) the caller's conversation with the poster of an
// item. 201 means the conversation was created by this call.
func (h *ConversationHandler) Contact(c echo.Context) error {
	var req contactReq
	if err := c.Bind(&req); err != nil || req.ItemID < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "item_id required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	it, err := h.Items.Get(ctx, req.ItemID)
	if err != nil {
		return fail(c, err, "load item failed")
	}
	uid := middleware.UserID(c)
	switch it.UserID {
	case "":
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "this item has no poster to contact"})
	case uid:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "this is your own item"})
	}
	conv, created, err := h.Convs.FindOrCreate(ctx, &it.ID, uid, it.UserID)
	if err != nil {
		return fail(c, err, "open conversation failed")
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, conv)
}

// Support returns the caller's support conversation with the admin.
func (h *ConversationHandler) Support(c echo.Context) error {
	if middleware.IsAdmin(c) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "admins answer support from the inbox"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	conv, err := h.Convs.GetOrCreateSupport(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "open support conversation failed")
	}
	return c.JSON(http.StatusOK, conv)
}

// Mine lists the caller's conversations, newest first.
func (h *ConversationHandler) Mine(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	convs, err := h.Convs.ListForUser(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "list conversations failed")
	}
	return c.JSON(http.StatusOK, convs)
}

// Unread returns the caller's unread count per conversation and in total.
func (h *ConversationHandler) Unread(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	counts, err := h.Msgs.UnreadByConversation(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "count unread failed")
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "conversations": counts})
}

// conversation loads :id and checks that the caller takes part in it or is
// an admin. On false the response has been written.
func (h *ConversationHandler) conversation(c echo.Context) (*model.Conversation, bool, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return nil, false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid conversation id"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	conv, err := h.Convs.Get(ctx, id)
	if err != nil {
		return nil, false, fail(c, err, "load conversation failed")
	}
	if !middleware.IsAdmin(c) && !conv.Involves(middleware.UserID(c)) {
		return nil, false, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return conv, true, nil
}

// Messages returns a conversation's messages in creation order.
func (h *ConversationHandler) Messages(c echo.Context) error {
	conv, ok, err := h.conversation(c)
	if !ok {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	msgs, err := h.Msgs.Load(ctx, conv.ID)
	if err != nil {
		return fail(c, err, "load messages failed")
	}
	return c.JSON(http.StatusOK, msgs)
}

// Send stores a message from the caller. On failure the body carries the
// unsent text so the client can restore its input.
func (h *ConversationHandler) Send(c echo.Context) error {
	var req sendReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	conv, ok, err := h.conversation(c)
	if !ok {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	m, err := h.Msgs.Send(ctx, conv.ID, req.Message, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "send message failed")
	}
	return c.JSON(http.StatusCreated, m)
}

// MarkRead flags as read the messages the caller did not write.
func (h *ConversationHandler) MarkRead(c echo.Context) error {
	conv, ok, err := h.conversation(c)
	if !ok {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	n, err := h.Msgs.MarkRead(ctx, conv.ID, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "mark read failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": n})
}

// Stream pushes messages written by the other participant as server-sent
// events until the client disconnects. Comment lines keep idle proxies from
// closing the connection.
func (h *ConversationHandler) Stream(c echo.Context) error {
	conv, ok, err := h.conversation(c)
	if !ok {
		return err
	}
	log := logger.FromContext(c).With(zap.String("conversation_id", conv.ID))
	ctx := c.Request().Context()

	incoming := make(chan model.Message, streamBuffer)
	sub, err := h.Msgs.Subscribe(ctx, conv.ID, middleware.UserID(c), func(m model.Message) {
		select {
		case incoming <- m:
		default:
			log.Warn("stream buffer full, dropping message", zap.Int64("message_id", m.ID))
		}
	})
	if err != nil {
		return fail(c, err, "subscribe failed")
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn("unsubscribe failed", zap.Error(err))
		}
	}()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return nil
	}
	w.Flush()

	ping := time.NewTicker(streamPing)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-incoming:
			data, err := json.Marshal(m)
			if err != nil {
				log.Error("encode message failed", zap.Int64("message_id", m.ID), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", m.ID, service.EventNewMessage, data); err != nil {
				return nil
			}
			w.Flush()
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
