package backend

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fashionfield/checkout/internal/domain"
)

// Envelope is the response wrapper used by every backend endpoint.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// CartItem is one element of the GET /cart payload.
type CartItem struct {
	ProductID       string          `json:"productId,omitempty"`
	ProductDetailID string          `json:"productDetailId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Size            string          `json:"size"`
	Color           string          `json:"color"`
	ImageURLs       []string        `json:"imageUrls"`
}

// AddCartItemRequest is the body of POST /cart/add.
type AddCartItemRequest struct {
	ProductDetailID string `json:"productDetailID"`
	Quantity        int    `json:"quantity"`
}

// OrderResult is the envelope of an accepted order submission. Data is kept undecoded.
type OrderResult = Envelope[json.RawMessage]

// orderPayload is the wire form of domain.Order. Amounts are sent as JSON numbers.
type orderPayload struct {
	OrderDetail        []orderLinePayload   `json:"orderDetail"`
	OrderStatusHistory []orderStatusPayload `json:"orderStatusHistory"`
	UserInfo           domain.UserInfo      `json:"userInfo"`
	Date               time.Time            `json:"date"`
	PaymentMethod      domain.PaymentType   `json:"paymentMethod"`
	Status             string               `json:"status"`
	ShippingFee        json.Number          `json:"shippingFee"`
	Tax                json.Number          `json:"tax"`
	Discount           json.Number          `json:"discount"`
	Total              json.Number          `json:"total"`
	TransactionID      *string              `json:"transactionId"`
}

type orderLinePayload struct {
	ProductDetailID  string      `json:"productDetailId"`
	ProductName      string      `json:"productName"`
	Quantity         int         `json:"quantity"`
	PresentUnitPrice json.Number `json:"presentUnitPrice"`
	Color            string      `json:"color"`
	ImageURLs        []string    `json:"imageUrls"`
	Size             string      `json:"size"`
}

type orderStatusPayload struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func newOrderPayload(order domain.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.OrderDetail))
	for _, line := range order.OrderDetail {
		images := line.ImageURLs
		if images == nil {
			images = []string{}
		}
		lines = append(lines, orderLinePayload{
			ProductDetailID:  line.ProductDetailID,
			ProductName:      line.ProductName,
			Quantity:         line.Quantity,
			PresentUnitPrice: number(line.PresentUnitPrice),
			Color:            line.Color,
			ImageURLs:        images,
			Size:             line.Size,
		})
	}
	history := make([]orderStatusPayload, 0, len(order.OrderStatusHistory))
	for _, entry := range order.OrderStatusHistory {
		history = append(history, orderStatusPayload{Date: entry.Date.UTC(), Status: entry.Status})
	}
	return orderPayload{
		OrderDetail:        lines,
		OrderStatusHistory: history,
		UserInfo:           order.UserInfo,
		Date:               order.Date.UTC(),
		PaymentMethod:      order.PaymentMethod,
		Status:             order.Status,
		ShippingFee:        number(order.ShippingFee),
		Tax:                number(order.Tax),
		Discount:           number(order.Discount),
		Total:              number(order.Total),
		TransactionID:      order.TransactionID,
	}
}
