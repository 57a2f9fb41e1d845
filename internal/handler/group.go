package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/group-cart/internal/model"
	"github.com/iliyamo/group-cart/internal/repository"
)

// GroupHandler exposes the group repository over HTTP. Responses wrap
// the record in {"data": group} so clients always unwrap the same
// envelope; a missing group on the read path is {"data": null} with
// 200 rather than a 404, because "no group yet" is a normal state for
// a just-started client.
type GroupHandler struct {
	Repo *repository.GroupRepo
}

// NewGroupHandler constructs a handler over the given repository.
func NewGroupHandler(repo *repository.GroupRepo) *GroupHandler {
	if repo == nil {
		panic("nil repository passed to NewGroupHandler")
	}
	return &GroupHandler{Repo: repo}
}

// New handles POST /v1/groups/new. The submitted member becomes the
// Owner of a fresh group in cart status.
func (h *GroupHandler) New(c echo.Context) error {
	var body struct {
		CartID string       `json:"cartId"`
		Member model.Member `json:"member"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	g, err := h.Repo.Create(c.Request().Context(), body.CartID, body.Member)
	if err != nil {
		return writeRepoError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": g})
}

// Join handles POST /v1/groups/join. Joining twice with the same uuid
// overwrites the earlier entry instead of duplicating it.
func (h *GroupHandler) Join(c echo.Context) error {
	var body struct {
		GroupID string       `json:"groupId"`
		Member  model.Member `json:"member"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	g, err := h.Repo.Join(c.Request().Context(), body.GroupID, body.Member)
	if err != nil {
		return writeRepoError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": g})
}

// Group handles GET /v1/groups/group?groupId=. A missing record yields
// {"data": null} so clients can distinguish "gone" without error
// handling on the read path.
func (h *GroupHandler) Group(c echo.Context) error {
	groupID := c.QueryParam("groupId")
	if groupID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "groupId is required"})
	}
	g, err := h.Repo.Get(c.Request().Context(), groupID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusOK, echo.Map{"data": nil})
	}
	if err != nil {
		return writeRepoError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": g})
}

// UpdateVariants handles POST /v1/groups/update-variants: one member's
// add/remove against their own selection list. The quantity defaults
// to 1 when omitted.
func (h *GroupHandler) UpdateVariants(c echo.Context) error {
	var body struct {
		GroupID string `json:"groupId"`
		Payload struct {
			UserID    string            `json:"userId"`
			Type      model.SelectionOp `json:"type"`
			VariantID string            `json:"variantId"`
			Quantity  *int              `json:"quantity"`
		} `json:"payload"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	upd := model.SelectionUpdate{
		UUID:      body.Payload.UserID,
		Op:        body.Payload.Type,
		VariantID: body.Payload.VariantID,
	}
	if body.Payload.Quantity != nil {
		upd.Quantity = *body.Payload.Quantity
	}
	g, err := h.Repo.UpdateSelection(c.Request().Context(), body.GroupID, upd)
	if err != nil {
		return writeRepoError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": g})
}

// UpdateMember handles POST /v1/groups/update-member: merge a member's
// mutable fields (notably the done flag) into the group.
func (h *GroupHandler) UpdateMember(c echo.Context) error {
	var body struct {
		GroupID string       `json:"groupId"`
		Member  model.Member `json:"member"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	g, err := h.Repo.UpdateMember(c.Request().Context(), body.GroupID, body.Member)
	if err != nil {
		return writeRepoError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": g})
}

// Checkout handles POST /v1/groups/checkout (Owner only).
func (h *GroupHandler) Checkout(c echo.Context) error {
	return h.transition(c, model.StatusCheckout)
}

// Cart handles POST /v1/groups/cart, resetting checkout back to cart.
// A no-op once the group is completed.
func (h *GroupHandler) Cart(c echo.Context) error {
	return h.transition(c, model.StatusCart)
}

// Complete handles POST /v1/groups/complete (Owner only).
func (h *GroupHandler) Complete(c echo.Context) error {
	return h.transition(c, model.StatusCompleted)
}

func (h *GroupHandler) transition(c echo.Context, target model.GroupStatus) error {
	var body struct {
		GroupID string `json:"groupId"`
		UserID  string `json:"userId"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	g, err := h.Repo.Transition(c.Request().Context(), body.GroupID, target, body.UserID)
	if err != nil {
		return writeRepoError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": g})
}

// writeRepoError translates repository sentinels into HTTP responses.
func writeRepoError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrMemberNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "member not found"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "group not found"})
	case errors.Is(err, repository.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "unauthorized"})
	case errors.Is(err, repository.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	default:
		slog.Error("group operation failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
