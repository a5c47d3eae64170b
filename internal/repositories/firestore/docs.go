package firestore

import (
	"time"

	domain "github.com/clearbay/orders/internal/domain"
)

// Document shapes for the orders collection. Field names are part of the
// stored schema; changing one requires a backfill.

type orderItemDoc struct {
	ProductID   string  `firestore:"productId"`
	ProductName string  `firestore:"productName"`
	UnitPrice   float64 `firestore:"unitPrice"`
	Quantity    int     `firestore:"quantity"`
	Subtotal    float64 `firestore:"subtotal"`
}

type pricingDoc struct {
	Subtotal float64 `firestore:"subtotal"`
	Tax      float64 `firestore:"tax"`
	Shipping float64 `firestore:"shipping"`
	Discount float64 `firestore:"discount"`
	Total    float64 `firestore:"total"`
}

type addressDoc struct {
	FullName string `firestore:"fullName,omitempty"`
	Street   string `firestore:"street,omitempty"`
	City     string `firestore:"city,omitempty"`
	State    string `firestore:"state,omitempty"`
	ZipCode  string `firestore:"zipCode,omitempty"`
	Country  string `firestore:"country,omitempty"`
	Phone    string `firestore:"phone,omitempty"`
}

type paymentDoc struct {
	Method        string     `firestore:"method,omitempty"`
	Status        string     `firestore:"status"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
}

type statusChangeDoc struct {
	Status    string    `firestore:"status"`
	ChangedAt time.Time `firestore:"changedAt"`
	Reason    string    `firestore:"reason,omitempty"`
	ChangedBy string    `firestore:"changedBy,omitempty"`
}

type orderDoc struct {
	OrderNumber     string            `firestore:"orderNumber"`
	UserID          string            `firestore:"userId"`
	UserEmail       string            `firestore:"userEmail,omitempty"`
	Items           []orderItemDoc    `firestore:"items"`
	Pricing         pricingDoc        `firestore:"pricing"`
	ShippingAddress addressDoc        `firestore:"shippingAddress"`
	Status          string            `firestore:"status"`
	Payment         paymentDoc        `firestore:"payment"`
	StatusHistory   []statusChangeDoc `firestore:"statusHistory"`
	Notes           string            `firestore:"notes,omitempty"`
	CancelReason    string            `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
	DeliveredAt     *time.Time        `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time        `firestore:"cancelledAt,omitempty"`
	Version         int64             `firestore:"version"`
}

func encodeOrder(order domain.Order) orderDoc {
	doc := orderDoc{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		UserEmail:   order.UserEmail,
		Items:       make([]orderItemDoc, 0, len(order.Items)),
		Pricing: pricingDoc{
			Subtotal: order.Pricing.Subtotal,
			Tax:      order.Pricing.Tax,
			Shipping: order.Pricing.Shipping,
			Discount: order.Pricing.Discount,
			Total:    order.Pricing.Total,
		},
		ShippingAddress: addressDoc{
			FullName: order.ShippingAddress.FullName,
			Street:   order.ShippingAddress.Street,
			City:     order.ShippingAddress.City,
			State:    order.ShippingAddress.State,
			ZipCode:  order.ShippingAddress.ZipCode,
			Country:  order.ShippingAddress.Country,
			Phone:    order.ShippingAddress.Phone,
		},
		Status: string(order.Status),
		Payment: paymentDoc{
			Method:        order.Payment.Method,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			PaidAt:        order.Payment.PaidAt,
		},
		StatusHistory: make([]statusChangeDoc, 0, len(order.StatusHistory)),
		Notes:         order.Notes,
		CancelReason:  order.CancelReason,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		DeliveredAt:   order.DeliveredAt,
		CancelledAt:   order.CancelledAt,
		Version:       order.Version,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDoc{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
		})
	}
	for _, change := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDoc{
			Status:    string(change.Status),
			ChangedAt: change.ChangedAt,
			Reason:    change.Reason,
			ChangedBy: change.ChangedBy,
		})
	}
	return doc
}

func decodeOrder(id string, doc orderDoc) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		UserEmail:   doc.UserEmail,
		Items:       make([]domain.OrderItem, 0, len(doc.Items)),
		Pricing: domain.Pricing{
			Subtotal: doc.Pricing.Subtotal,
			Tax:      doc.Pricing.Tax,
			Shipping: doc.Pricing.Shipping,
			Discount: doc.Pricing.Discount,
			Total:    doc.Pricing.Total,
		},
		ShippingAddress: domain.Address{
			FullName: doc.ShippingAddress.FullName,
			Street:   doc.ShippingAddress.Street,
			City:     doc.ShippingAddress.City,
			State:    doc.ShippingAddress.State,
			ZipCode:  doc.ShippingAddress.ZipCode,
			Country:  doc.ShippingAddress.Country,
			Phone:    doc.ShippingAddress.Phone,
		},
		Status: domain.OrderStatus(doc.Status),
		Payment: domain.Payment{
			Method:        doc.Payment.Method,
			Status:        domain.PaymentStatus(doc.Payment.Status),
			TransactionID: doc.Payment.TransactionID,
			PaidAt:        doc.Payment.PaidAt,
		},
		StatusHistory: make([]domain.StatusChange, 0, len(doc.StatusHistory)),
		Notes:         doc.Notes,
		CancelReason:  doc.CancelReason,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		DeliveredAt:   doc.DeliveredAt,
		CancelledAt:   doc.CancelledAt,
		Version:       doc.Version,
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
		})
	}
	for _, change := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			Status:    domain.OrderStatus(change.Status),
			ChangedAt: change.ChangedAt,
			Reason:    change.Reason,
			ChangedBy: change.ChangedBy,
		})
	}
	return order
}
