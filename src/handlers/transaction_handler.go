package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/services"
	"github.com/username/ledgerdesk/backend/src/utils"
)

type TransactionHandler struct {
	transactionService services.TransactionService
}

func NewTransactionHandler(transactionService services.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

type selectCustomerRequest struct {
	CustomerID string `json:"customerId"`
}

type chargesRequest struct {
	ShippingCharges decimal.Decimal `json:"shippingCharges"`
	Adjustment      decimal.Decimal `json:"adjustment"`
}

func (h *TransactionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req services.CreateTransactionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	logger.FromContext(r.Context()).Info("Handling CreateTransaction", "kind", req.Kind, "customerID", req.CustomerID, "invoiceID", req.InvoiceID)

	view, err := h.transactionService.Create(r.Context(), req)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusCreated)
}

func (h *TransactionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.transactionService.View(chi.URLParam(r, "sessionID"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *TransactionHandler) HandleSelectCustomer(w http.ResponseWriter, r *http.Request) {
	var req selectCustomerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	view, err := h.transactionService.SelectCustomer(r.Context(), chi.URLParam(r, "sessionID"), req.CustomerID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *TransactionHandler) HandleAppendLine(w http.ResponseWriter, r *http.Request) {
	var item models.LineItem
	if !decodeJSONBody(w, r, &item) {
		return
	}
	view, err := h.transactionService.AppendLine(chi.URLParam(r, "sessionID"), item)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *TransactionHandler) HandleSetLine(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndexParam(w, r)
	if !ok {
		return
	}
	var item models.LineItem
	if !decodeJSONBody(w, r, &item) {
		return
	}
	view, err := h.transactionService.SetLine(chi.URLParam(r, "sessionID"), index, item)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *TransactionHandler) HandleRemoveLine(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndexParam(w, r)
	if !ok {
		return
	}
	view, err := h.transactionService.RemoveLine(chi.URLParam(r, "sessionID"), index)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *TransactionHandler) HandleSetCharges(w http.ResponseWriter, r *http.Request) {
	var req chargesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	view, err := h.transactionService.SetCharges(chi.URLParam(r, "sessionID"), req.ShippingCharges, req.Adjustment)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *TransactionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	view, err := h.transactionService.Save(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}

func (h *TransactionHandler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := h.transactionService.Discard(chi.URLParam(r, "sessionID")); err != nil {
		sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCompute computes a document without opening a session.
func (h *TransactionHandler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	var req services.ComputeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	view, err := h.transactionService.Compute(req)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, view, http.StatusOK)
}
