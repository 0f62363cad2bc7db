package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/evergrid/creditbook/pkg/escrow"
	"github.com/evergrid/creditbook/pkg/market"
	"github.com/evergrid/creditbook/pkg/orderbook"
	"github.com/evergrid/creditbook/pkg/token"
)

// Handler exposes the trading surface the marketplace UI consumes.
// Caller identity arrives in the X-Account header, standing in for the
// connected wallet address.
type Handler struct {
	Engine     *orderbook.Engine
	Escrow     *escrow.Gateway
	Market     *market.Service
	Stablecoin *token.Stablecoin
	Credit     *token.CreditToken
}

func NewHandler(engine *orderbook.Engine, gw *escrow.Gateway, mkt *market.Service, stablecoin *token.Stablecoin, credit *token.CreditToken) *Handler {
	return &Handler{
		Engine:     engine,
		Escrow:     gw,
		Market:     mkt,
		Stablecoin: stablecoin,
		Credit:     credit,
	}
}

type approveStablecoinRequest struct {
	Amount string `json:"amount"` // decimal string, e.g. "100.00"
}

type receiptResponse struct {
	TransactionHash string `json:"transactionHash"`
	OrderID         uint64 `json:"orderId,omitempty"`
}

type placeOrderRequest struct {
	TokenID      uint64 `json:"tokenId"`
	IsBuy        bool   `json:"isBuy"`
	Price        string `json:"price"` // decimal string, 6 dp max
	Amount       int64  `json:"amount"`
	Expiry       int64  `json:"expiry,omitempty"`
	Salt         uint64 `json:"salt,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
}

type fillOrderRequest struct {
	Amount int64 `json:"amount"`
}

type orderResponse struct {
	ID           uint64 `json:"id"`
	Maker        string `json:"maker"`
	TokenID      uint64 `json:"tokenId"`
	Side         string `json:"side"`
	IsBuy        bool   `json:"isBuy"`
	Price        string `json:"price"`
	PriceMicros  int64  `json:"priceMicros"`
	Amount       int64  `json:"amount"`
	Filled       int64  `json:"filled"`
	Remaining    int64  `json:"remaining"`
	Active       bool   `json:"active"`
	Expiry       int64  `json:"expiry,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

type bookResponse struct {
	Buys  []orderResponse `json:"buys"`
	Sells []orderResponse `json:"sells"`
}

type mintRequest struct {
	Amount  string `json:"amount"`
	TokenID uint64 `json:"tokenId,omitempty"`
	Qty     int64  `json:"qty,omitempty"`
}

func (h *Handler) ApproveGreenCredit(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}
	receipt, err := h.Escrow.ApproveGreenCredit(r.Context(), account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{TransactionHash: receipt.TransactionHash})
}

func (h *Handler) ApproveStablecoin(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req approveStablecoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	micros, err := parseMicros(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	receipt, err := h.Escrow.ApproveStablecoin(r.Context(), account, micros)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{TransactionHash: receipt.TransactionHash})
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	price, err := parseMicros(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	receipt, err := h.Engine.PlaceOrder(r.Context(), &orderbook.PlaceOrderRequest{
		Maker:        account,
		TokenID:      req.TokenID,
		IsBuy:        req.IsBuy,
		Price:        price,
		Amount:       req.Amount,
		Expiry:       req.Expiry,
		Salt:         req.Salt,
		Counterparty: req.Counterparty,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.Market.Invalidate(r.Context(), req.TokenID)
	writeJSON(w, http.StatusOK, receiptResponse{
		TransactionHash: receipt.TransactionHash,
		OrderID:         receipt.OrderID,
	})
}

func (h *Handler) FillOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	var req fillOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	receipt, err := h.Engine.FillOrder(r.Context(), account, orderID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateFor(r, orderID)
	writeJSON(w, http.StatusOK, receiptResponse{
		TransactionHash: receipt.TransactionHash,
		OrderID:         receipt.OrderID,
	})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}

	receipt, err := h.Engine.CancelOrder(r.Context(), account, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateFor(r, orderID)
	writeJSON(w, http.StatusOK, receiptResponse{
		TransactionHash: receipt.TransactionHash,
		OrderID:         receipt.OrderID,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	order, err := h.Engine.GetOrder(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) IsOrderActive(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	active, err := h.Engine.IsOrderActive(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (h *Handler) NextOrderID(w http.ResponseWriter, r *http.Request) {
	next, err := h.Engine.NextOrderID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"nextOrderId": next})
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	var tokenFilter *uint64
	if raw := r.URL.Query().Get("token"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid token filter")
			return
		}
		tokenFilter = &id
	}

	book, err := h.Market.LoadActiveOrders(r.Context(), tokenFilter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := bookResponse{Buys: []orderResponse{}, Sells: []orderResponse{}}
	for _, o := range book.Buys {
		resp.Buys = append(resp.Buys, toOrderResponse(o))
	}
	for _, o := range book.Sells {
		resp.Sells = append(resp.Sells, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	completed, err := h.Market.LoadCompletedOrders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]orderResponse, 0, len(completed))
	for _, o := range completed {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MintStablecoin funds an account on the dev ledger. Not part of the
// trading surface; only mounted when the service runs without a real
// asset backend.
func (h *Handler) MintStablecoin(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	micros, err := parseMicros(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := h.Stablecoin.Mint(account, micros); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) MintCredit(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.Credit.Mint(account, req.TokenID, req.Qty); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) invalidateFor(r *http.Request, orderID uint64) {
	order, err := h.Engine.GetOrder(r.Context(), orderID)
	if err != nil {
		return
	}
	h.Market.Invalidate(r.Context(), order.TokenID)
}

func callerAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := r.Header.Get("X-Account")
	if account == "" {
		writeError(w, http.StatusUnauthorized, "missing account")
		return "", false
	}
	return account, true
}

func pathOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "orderID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// parseMicros converts a decimal string into integer micro-units. More
// than 6 decimal places is rejected: settlement amounts never round.
func parseMicros(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	shifted := d.Shift(6)
	if !shifted.IsInteger() {
		return 0, errors.New("more than 6 decimal places")
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return 0, errors.New("amount out of range")
	}
	return bi.Int64(), nil
}

func formatMicros(m int64) string {
	return decimal.New(m, -6).StringFixed(6)
}

func toOrderResponse(o *orderbook.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		Maker:        o.Maker,
		TokenID:      o.TokenID,
		Side:         string(o.Side()),
		IsBuy:        o.IsBuy,
		Price:        formatMicros(o.Price),
		PriceMicros:  o.Price,
		Amount:       o.Amount,
		Filled:       o.Filled,
		Remaining:    o.Remaining(),
		Active:       o.Active,
		Expiry:       o.Expiry,
		Counterparty: o.Counterparty,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderbook.ErrInvalidParameters):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrApprovalRejected):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrInsufficientApproval):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, orderbook.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orderbook.ErrOrderInactive),
		errors.Is(err, orderbook.ErrOverfillAttempt),
		errors.Is(err, orderbook.ErrCounterpartyRestricted),
		errors.Is(err, orderbook.ErrNotMaker):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, token.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orderbook.ErrSettlementTransferFailed),
		errors.Is(err, escrow.ErrEscrowCallFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
