package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/model"
	"github.com/example/ec-storefront/internal/query"
)

// SessionHeader carries the anonymous cart key in both directions.
const SessionHeader = "X-Cart-Session"

const maxBodyBytes = 1 << 20

var errEmptyBody = fmt.Errorf("request body is required: %w", io.EOF)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	logger       *slog.Logger
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, logger *slog.Logger) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		logger:       logger.With("component", "api"),
	}
}

// Cart Handlers

// cartOwner resolves whose cart the request addresses. Authenticated
// callers use their user cart; anonymous callers use the session key from
// the header, and get a fresh one when they send none.
func cartOwner(w http.ResponseWriter, r *http.Request) model.CartOwner {
	if c := middleware.CallerFromContext(r.Context()); c.Authenticated() {
		return model.UserOwner(c.UserID)
	}
	key := strings.TrimSpace(r.Header.Get(SessionHeader))
	if key == "" {
		key = uuid.New().String()
	}
	w.Header().Set(SessionHeader, key)
	return model.SessionOwner(key)
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	owner := cartOwner(w, r)
	view, err := h.queryHandler.GetCart(r.Context(), owner)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// AddToCart adds a product to the caller's cart. An omitted quantity adds one.
func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	cmd := command.AddToCart{Quantity: 1}
	if err := decodeJSON(r, &cmd); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	cmd.Owner = cartOwner(w, r)

	view, err := h.cmdHandler.AddToCart(r.Context(), cmd)
	if err != nil {
		// A product that cannot be added is a bad request here, not a
		// missing resource.
		if errors.Is(err, cart.ErrProductUnavailable) {
			respondBadRequest(w, err.Error())
			return
		}
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// UpdateCartItem sets a line quantity. A missing, non-integer or
// non-positive quantity removes the line.
func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(w, err.Error())
		return
	}

	cmd := command.UpdateCartItem{
		Owner:    cartOwner(w, r),
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: parseQuantity(body["quantity"]),
	}
	view, err := h.cmdHandler.UpdateCartItem(r.Context(), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func parseQuantity(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	cmd := command.RemoveFromCart{
		Owner:  cartOwner(w, r),
		ItemID: chi.URLParam(r, "itemID"),
	}
	view, err := h.cmdHandler.RemoveFromCart(r.Context(), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// MergeCart folds the anonymous cart named by the body or the session
// header into the caller's cart.
func (h *Handlers) MergeCart(w http.ResponseWriter, r *http.Request) {
	var cmd command.MergeCart
	if err := decodeJSON(r, &cmd); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(w, err.Error())
		return
	}
	if cmd.SessionKey == "" {
		cmd.SessionKey = strings.TrimSpace(r.Header.Get(SessionHeader))
	}
	cmd.UserID = middleware.CallerFromContext(r.Context()).UserID

	view, err := h.cmdHandler.MergeCart(r.Context(), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.PlaceOrder
	if err := decodeJSON(r, &cmd); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(w, err.Error())
		return
	}

	order, err := h.cmdHandler.PlaceOrder(r.Context(), middleware.CallerFromContext(r.Context()), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListOrdersByUser(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.queryHandler.GetOrder(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// Admin Handlers

func (h *Handlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListAllOrders(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetAnyOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.queryHandler.GetAnyOrder(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) ReplaceOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.ReplaceOrder
	if err := decodeJSON(r, &cmd); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.cmdHandler.ReplaceOrder(r.Context(), middleware.CallerFromContext(r.Context()), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) PatchOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.PatchOrder
	if err := decodeJSON(r, &cmd); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderID")

	order, err := h.cmdHandler.PatchOrder(r.Context(), middleware.CallerFromContext(r.Context()), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	cmd := command.CancelOrder{OrderID: chi.URLParam(r, "orderID")}
	if err := h.cmdHandler.CancelOrder(r.Context(), middleware.CallerFromContext(r.Context()), cmd); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Order cancelled"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst. An empty body yields
// io.EOF so callers can decide whether a body is required.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

// callerRequired rejects anonymous requests on routes that need a user.
func callerRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !middleware.CallerFromContext(r.Context()).Authenticated() {
			middleware.RespondError(w, "authentication required", "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
