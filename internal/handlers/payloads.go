package handlers

import (
	"strings"
	"time"

	domain "github.com/clearbay/orders/internal/domain"
)

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type orderSummaryPayload struct {
	ID          string  `json:"id"`
	OrderNumber string  `json:"orderNumber"`
	Status      string  `json:"status"`
	Total       float64 `json:"total"`
	ItemCount   int     `json:"itemCount"`
	CreatedAt   string  `json:"createdAt"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	UserID          string                `json:"userId"`
	UserEmail       string                `json:"userEmail,omitempty"`
	Status          string                `json:"status"`
	Items           []orderItemPayload    `json:"items"`
	Pricing         pricingPayload        `json:"pricing"`
	ShippingAddress addressPayload        `json:"shippingAddress"`
	Payment         paymentPayload        `json:"payment"`
	StatusHistory   []statusChangePayload `json:"statusHistory,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	CancelReason    string                `json:"cancelReason,omitempty"`
	CreatedAt       string                `json:"createdAt"`
	UpdatedAt       string                `json:"updatedAt,omitempty"`
	DeliveredAt     string                `json:"deliveredAt,omitempty"`
	CancelledAt     string                `json:"cancelledAt,omitempty"`
}

type orderItemPayload struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName,omitempty"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	Subtotal    float64 `json:"subtotal"`
}

type pricingPayload struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

type addressPayload struct {
	FullName string `json:"fullName,omitempty"`
	Street   string `json:"street,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zipCode,omitempty"`
	Country  string `json:"country,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type paymentPayload struct {
	Method        string `json:"method,omitempty"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	PaidAt        string `json:"paidAt,omitempty"`
}

type statusChangePayload struct {
	Status    string `json:"status"`
	ChangedAt string `json:"changedAt"`
	Reason    string `json:"reason,omitempty"`
	ChangedBy string `json:"changedBy,omitempty"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Status:      string(order.Status),
		Total:       order.Pricing.Total,
		ItemCount:   len(order.Items),
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
		})
	}

	history := make([]statusChangePayload, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, statusChangePayload{
			Status:    string(change.Status),
			ChangedAt: formatTime(change.ChangedAt),
			Reason:    change.Reason,
			ChangedBy: change.ChangedBy,
		})
	}

	return orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		UserEmail:   strings.TrimSpace(order.UserEmail),
		Status:      string(order.Status),
		Items:       items,
		Pricing: pricingPayload{
			Subtotal: order.Pricing.Subtotal,
			Tax:      order.Pricing.Tax,
			Shipping: order.Pricing.Shipping,
			Discount: order.Pricing.Discount,
			Total:    order.Pricing.Total,
		},
		ShippingAddress: addressPayload{
			FullName: order.ShippingAddress.FullName,
			Street:   order.ShippingAddress.Street,
			City:     order.ShippingAddress.City,
			State:    order.ShippingAddress.State,
			ZipCode:  order.ShippingAddress.ZipCode,
			Country:  order.ShippingAddress.Country,
			Phone:    order.ShippingAddress.Phone,
		},
		Payment: paymentPayload{
			Method:        order.Payment.Method,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			PaidAt:        formatTime(pointerTime(order.Payment.PaidAt)),
		},
		StatusHistory: history,
		Notes:         order.Notes,
		CancelReason:  order.CancelReason,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		DeliveredAt:   formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:   formatTime(pointerTime(order.CancelledAt)),
	}
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
