package todo

import (
	"fmt"
	"strconv"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/core/failfast"
	"github.com/fluxorio/todo/pkg/events"
	"github.com/fluxorio/todo/pkg/web"
	"github.com/valyala/fasthttp"
)

// EventCreated is published after an item is stored
const EventCreated = "created"

// Handler serves the /todos endpoints
type Handler struct {
	store     *Store
	publisher events.Publisher
	logger    core.Logger
}

// NewHandler creates the /todos handler. A nil publisher disables events.
func NewHandler(store *Store, publisher events.Publisher, logger core.Logger) *Handler {
	failfast.NotNil(store, "store")
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &Handler{store: store, publisher: publisher, logger: logger}
}

// Register adds GET and POST /todos to router
func (h *Handler) Register(router *web.Router, middleware ...web.FastMiddleware) {
	router.GET("/todos", h.List, middleware...)
	router.POST("/todos", h.Create, middleware...)
}

// List handles GET /todos
func (h *Handler) List(ctx *web.FastRequestContext) error {
	sess, err := h.store.Acquire(ctx.Context())
	if err != nil {
		return err
	}
	defer sess.Release()

	items, err := sess.ListAll(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(fasthttp.StatusOK, items)
}

// Create handles POST /todos
func (h *Handler) Create(ctx *web.FastRequestContext) error {
	var req CreateRequest
	if err := ctx.BindJSON(&req); err != nil {
		return fmt.Errorf("decode create request: %w", err)
	}

	sess, err := h.store.Acquire(ctx.Context())
	if err != nil {
		return err
	}
	defer sess.Release()

	item, err := sess.Insert(ctx.Context(), req.Item())
	if err != nil {
		return err
	}

	if err := h.publisher.Publish(ctx.Context(), EventCreated, item); err != nil {
		h.logger.WithContext(ctx.Context()).Warnf("publish %s event for todo %d: %v", EventCreated, item.ID, err)
	}

	ctx.SetHeader("Location", "/todos/"+strconv.FormatInt(item.ID, 10))
	return ctx.JSON(fasthttp.StatusCreated, item)
}
