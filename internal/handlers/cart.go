package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fashionfield/checkout/internal/platform/httpx"
	"github.com/fashionfield/checkout/internal/services"
)

// CartHandlers forwards cart edits made before checkout to the backend cart.
type CartHandlers struct {
	checkout services.CheckoutService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(checkout services.CheckoutService) *CartHandlers {
	return &CartHandlers{checkout: checkout}
}

// Routes registers cart endpoints under the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/cart/items", h.addItem)
}

type addCartItemRequest struct {
	ProductDetailID string `json:"productDetailId"`
	Quantity        int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.checkout.AddCartItem(r.Context(), services.AddCartItemCommand{
		Owner:           identity.Subject,
		Token:           identity.Token,
		ProductDetailID: req.ProductDetailID,
		Quantity:        req.Quantity,
	}); err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"productDetailId": req.ProductDetailID,
		"quantity":        req.Quantity,
	})
}
