package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/clearbay/orders/internal/domain"
	"github.com/clearbay/orders/internal/platform/auth"
	"github.com/clearbay/orders/internal/platform/httpx"
	"github.com/clearbay/orders/internal/platform/pagination"
	"github.com/clearbay/orders/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
	maxCancelBodySize    = 4 * 1024
	idempotencyKeyHeader = "Idempotency-Key"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

// OrderHandlers exposes order endpoints for authenticated users and staff.
type OrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	sanitizer *bluemonday.Policy
	rateLimit func(http.Handler) http.Handler
}

// OrderHandlersOption customises an OrderHandlers instance.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderRateLimit applies a rate limiting middleware after authentication
// so budgets are keyed by the caller's identity.
func WithOrderRateLimit(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.rateLimit = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:     authn,
		orders:    orders,
		sanitizer: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	if h.rateLimit != nil {
		r.Use(h.rateLimit)
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(auth.RoleAdmin, auth.RoleStaff))
		}
		admin.Patch("/{orderID}/status", h.updateStatus)
	})
}

// MeRoutes registers the user-scoped /me endpoints.
func (h *OrderHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	if h.rateLimit != nil {
		r.Use(h.rateLimit)
	}
	r.Get("/orders", h.listMyOrders)
}

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type addressRequest struct {
	FullName string `json:"fullName"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
	Phone    string `json:"phone,omitempty"`
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	ShippingAddress addressRequest     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Notes           string             `json:"notes,omitempty"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one item is required", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment method is required", http.StatusBadRequest))
		return
	}

	items := make([]services.OrderItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item productId is required", http.StatusBadRequest))
			return
		}
		if item.Quantity <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item quantity must be positive", http.StatusBadRequest))
			return
		}
		items = append(items, services.OrderItemRequest{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	cmd := services.CreateOrderCommand{
		Items:           items,
		ShippingAddress: buildAddress(req.ShippingAddress),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Notes:           h.sanitizer.Sanitize(strings.TrimSpace(req.Notes)),
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	}

	order, err := h.orders.CreateOrder(ctx, cmd, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actorFor(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	opts := services.ListOrdersOptions{
		Page: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := domain.ParseStatus(strings.ToLower(raw))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		opts.Status = &status
	}

	page, err := h.orders.ListUserOrders(ctx, identity.UID, opts)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxCancelBodySize)
	switch {
	case errors.Is(err, errEmptyBody):
		// cancellation reason is optional
	case err != nil:
		writeBodyError(ctx, w, err)
		return
	default:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	reason := h.sanitizer.Sanitize(strings.TrimSpace(req.Reason))
	if reason == "" {
		reason = "Cancelled by customer"
	}

	order, err := h.orders.CancelOrder(ctx, orderID, reason, actorFor(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCancelBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target, err := domain.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	reason := h.sanitizer.Sanitize(strings.TrimSpace(req.Reason))

	order, err := h.orders.TransitionStatus(ctx, orderID, target, reason, actorFor(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func actorFor(identity *auth.Identity) services.Actor {
	return services.Actor{
		ID:    strings.TrimSpace(identity.UID),
		Admin: identity.IsAdmin(),
	}
}

func buildAddress(req addressRequest) domain.Address {
	return domain.Address{
		FullName: strings.TrimSpace(req.FullName),
		Street:   strings.TrimSpace(req.Street),
		City:     strings.TrimSpace(req.City),
		State:    strings.TrimSpace(req.State),
		ZipCode:  strings.TrimSpace(req.ZipCode),
		Country:  strings.TrimSpace(req.Country),
		Phone:    strings.TrimSpace(req.Phone),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	code := services.FailureCode(err)
	switch code {
	case services.CodeUserInvalid, services.CodeItemInvalid:
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusBadRequest))
	case services.CodeInsufficientStock, services.CodeReservationFailed,
		services.CodeInvalidTransition, services.CodeConcurrentModification:
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusConflict))
	case services.CodePaymentFailed:
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusPaymentRequired))
	case services.CodeOrderNotFound, services.CodeUnauthorized:
		// Forbidden reads look identical to missing orders so order IDs can
		// never be probed.
		httpx.WriteError(ctx, w, httpx.NewError(services.CodeOrderNotFound, "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(services.CodeInternal, "failed to process order request", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxOrderBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
