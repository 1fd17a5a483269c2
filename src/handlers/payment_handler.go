package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/services"
	"github.com/username/ledgerdesk/backend/src/utils"
)

type PaymentHandler struct {
	paymentService services.PaymentService
}

func NewPaymentHandler(paymentService services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

type openPaymentRequest struct {
	CustomerID string `json:"customerId"`
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (h *PaymentHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req openPaymentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	logger.FromContext(r.Context()).Info("Handling OpenPayment", "customerID", req.CustomerID)

	view, err := h.paymentService.Open(r.Context(), req.CustomerID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusCreated)
}

func (h *PaymentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.paymentService.View(chi.URLParam(r, "sessionID"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *PaymentHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	view, err := h.paymentService.Toggle(chi.URLParam(r, "sessionID"), chi.URLParam(r, "invoiceID"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *PaymentHandler) HandleSetAmount(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	view, err := h.paymentService.SetAmount(chi.URLParam(r, "sessionID"), chi.URLParam(r, "invoiceID"), amount)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *PaymentHandler) HandleAutoAllocate(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	view, err := h.paymentService.AutoAllocate(chi.URLParam(r, "sessionID"), amount)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *PaymentHandler) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req services.PaymentDetailsInput
	if !decodeJSONBody(w, r, &req) {
		return
	}
	view, err := h.paymentService.UpdateDetails(chi.URLParam(r, "sessionID"), req)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *PaymentHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.paymentService.Submit(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, receipt, http.StatusCreated)
}

func (h *PaymentHandler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := h.paymentService.Discard(chi.URLParam(r, "sessionID")); err != nil {
		sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req amountRequest
	if !decodeJSONBody(w, r, &req) {
		return decimal.Zero, false
	}
	if req.Amount == nil {
		utils.SendJSONError(w, "amount is required", http.StatusBadRequest)
		return decimal.Zero, false
	}
	return *req.Amount, true
}
