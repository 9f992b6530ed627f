// Package order tracks prepaid-bundle orders from checkout through
// delivery.
package order

import (
	"errors"
	"regexp"
	"time"
)

// Status is the fulfillment lifecycle of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// PaymentStatus is the payment leg of an order, tracked separately from
// fulfillment so a paid order that fails delivery stays visibly paid.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// ghanaPhone matches local (0XXXXXXXXX) and international (+233XXXXXXXXX
// or 233XXXXXXXXX) Ghana mobile numbers.
var ghanaPhone = regexp.MustCompile(`^(\+?233|0)[235][0-9]{8}$`)

// ValidPhone reports whether a recipient phone number is a plausible
// Ghana mobile number. Orders with invalid numbers are rejected before
// any money moves.
func ValidPhone(phone string) bool {
	return ghanaPhone.MatchString(phone)
}

// Order is one bundle purchase. SellingPrice and BasePrice are minor
// units; Profit is their difference and is credited to the store on
// successful payment.
type Order struct {
	ID               string        `json:"id"`
	StoreID          string        `json:"store_id"`
	ProductID        string        `json:"product_id"`
	BuyerPhone       string        `json:"buyer_phone"`
	SellingPrice     int64         `json:"selling_price"`
	BasePrice        int64         `json:"base_price"`
	Profit           int64         `json:"profit"`
	OrderStatus      Status        `json:"order_status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentReference string        `json:"payment_reference"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
}

// New creates a pending order.
func New(id, storeID, productID, buyerPhone string, sellingPrice, basePrice int64, paymentReference string) (*Order, error) {
	if id == "" || storeID == "" || productID == "" {
		return nil, errors.New("id, store_id and product_id are required")
	}
	if !ValidPhone(buyerPhone) {
		return nil, errors.New("invalid recipient phone number")
	}
	if sellingPrice <= 0 || basePrice <= 0 {
		return nil, errors.New("prices must be positive")
	}
	if sellingPrice < basePrice {
		return nil, errors.New("selling price below base price")
	}
	if paymentReference == "" {
		return nil, errors.New("payment reference is required")
	}

	return &Order{
		ID:               id,
		StoreID:          storeID,
		ProductID:        productID,
		BuyerPhone:       buyerPhone,
		SellingPrice:     sellingPrice,
		BasePrice:        basePrice,
		Profit:           sellingPrice - basePrice,
		OrderStatus:      StatusPending,
		PaymentStatus:    PaymentPending,
		PaymentReference: paymentReference,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}, nil
}
