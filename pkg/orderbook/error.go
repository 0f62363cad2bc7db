package orderbook

import "errors"

var (
	ErrInvalidParameters        = errors.New("invalid order parameters")
	ErrOrderNotFound            = errors.New("order not found")
	ErrOrderInactive            = errors.New("order inactive")
	ErrOverfillAttempt          = errors.New("fill exceeds remaining quantity")
	ErrNotMaker                 = errors.New("caller is not the order maker")
	ErrCounterpartyRestricted   = errors.New("order restricted to another counterparty")
	ErrSettlementTransferFailed = errors.New("settlement transfer failed")
)
