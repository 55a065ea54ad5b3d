package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/verified-checkout/internal/common"
	"github.com/noah-isme/verified-checkout/internal/config"
)

// Handler exposes the checkout flow's HTTP surface.
type Handler struct {
	Svc            *Service
	Validate       *validator.Validate
	PublishableKey string
	Purchase       config.Purchase
}

// OnboardInput is the create-customer request payload.
type OnboardInput struct {
	Phone string `json:"phone" validate:"required,e164"`
	Email string `json:"email" validate:"required,email"`
}

// StartVerifyInput identifies the remembered customer to challenge.
type StartVerifyInput struct {
	CustomerID string `json:"customerId" validate:"required"`
}

// CheckVerifyInput carries the submitted code and the opaque cart.
type CheckVerifyInput struct {
	CustomerID string          `json:"customerId" validate:"required"`
	Code       string          `json:"code" validate:"required,min=4,max=10"`
	Items      json.RawMessage `json:"items"`
}

// Config returns the publishable key and fixed purchase for the client.
func (h *Handler) Config(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{
		"publishableKey": h.PublishableKey,
		"purchase":       h.Purchase,
	})
}

// CreateCustomer runs the onboarding step.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var payload OnboardInput
	if !h.decode(w, r, &payload) {
		return
	}
	out, err := h.Svc.Onboard(r.Context(), payload.Phone, payload.Email, common.RequestOrigin(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"customer":        out.Customer,
		"checkoutSession": out.Session,
	})
}

// Session resolves a completed setup session from a redirect identifier.
// An unknown identifier yields a null session, not an error.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	session, err := h.Svc.ResolveSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"checkoutSession": session})
}

// StartVerify requests a one-time code be sent to the customer's phone.
func (h *Handler) StartVerify(w http.ResponseWriter, r *http.Request) {
	var payload StartVerifyInput
	if !h.decode(w, r, &payload) {
		return
	}
	status, err := h.Svc.StartVerification(r.Context(), payload.CustomerID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"status": status})
}

// CheckVerify checks the submitted code and charges the stored card on approval.
func (h *Handler) CheckVerify(w http.ResponseWriter, r *http.Request) {
	var payload CheckVerifyInput
	if !h.decode(w, r, &payload) {
		return
	}
	intent, err := h.Svc.CheckAndCharge(r.Context(), payload.CustomerID, payload.Code, payload.Items)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"paymentIntent": intent})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", validationMessage(err), nil)
			return false
		}
	}
	return true
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		field := errs[0]
		switch field.Tag() {
		case "e164":
			return "phone must be a valid international number"
		case "email":
			return "email must be a valid address"
		case "required":
			return field.Field() + " is required"
		}
	}
	return "invalid payload"
}
