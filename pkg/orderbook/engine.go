package orderbook

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/evergrid/creditbook/pkg/escrow"
	"github.com/evergrid/creditbook/pkg/journal"
	"github.com/evergrid/creditbook/pkg/logging"
)

// Engine validates, settles and records trades against the order ledger.
// Escrow state is external: the engine only checks sufficiency through
// the gateway's legs and moves value through its custody during fills.
type Engine struct {
	store   Store
	escrow  *escrow.Gateway
	journal *journal.Journal
	log     *logging.Logger
	now     func() time.Time
}

func NewEngine(store Store, gw *escrow.Gateway, j *journal.Journal, log *logging.Logger) *Engine {
	return &Engine{
		store:   store,
		escrow:  gw,
		journal: j,
		log:     log,
		now:     time.Now,
	}
}

type PlaceOrderRequest struct {
	Maker        string
	TokenID      uint64
	IsBuy        bool
	Price        int64 // micro-units per credit
	Amount       int64
	Expiry       int64
	Salt         uint64
	Counterparty string
}

type PlaceReceipt struct {
	TransactionHash string
	OrderID         uint64
}

type FillReceipt struct {
	TransactionHash string
	OrderID         uint64
	FillAmount      int64
	Filled          int64
	Active          bool
}

// PlaceOrder validates the request, verifies the maker's escrow covers
// the side being committed, and appends the order with a fresh id.
func (e *Engine) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceReceipt, error) {
	if req.Maker == "" || req.Price <= 0 || req.Amount <= 0 {
		return nil, fmt.Errorf("%w: price and amount must be positive", ErrInvalidParameters)
	}
	notional, err := notionalOf(req.Price, req.Amount)
	if err != nil {
		return nil, err
	}
	if req.Expiry != 0 && req.Expiry <= e.now().Unix() {
		return nil, fmt.Errorf("%w: expiry in the past", ErrInvalidParameters)
	}

	// Buy makers commit price*amount stablecoin, sell makers commit the
	// credits themselves.
	if req.IsBuy {
		err = e.escrow.StablecoinLeg().Check(ctx, req.Maker, notional)
	} else {
		err = e.escrow.CreditLeg(req.TokenID).Check(ctx, req.Maker, req.Amount)
	}
	if err != nil {
		return nil, err
	}

	order := &Order{
		Maker:        req.Maker,
		TokenID:      req.TokenID,
		IsBuy:        req.IsBuy,
		Price:        req.Price,
		Amount:       req.Amount,
		Filled:       0,
		Active:       true,
		Expiry:       req.Expiry,
		Salt:         req.Salt,
		Counterparty: req.Counterparty,
	}
	if err := e.store.Append(ctx, order); err != nil {
		return nil, err
	}

	txHash := escrow.TxHash()
	e.record(&journal.OrderEvent{
		EventID:   journal.NewEventID(order.ID, journal.EventPlaced, 0),
		OrderID:   order.ID,
		Type:      journal.EventPlaced,
		Maker:     order.Maker,
		TokenID:   order.TokenID,
		IsBuy:     order.IsBuy,
		Price:     order.Price,
		Qty:       order.Amount,
		Filled:    0,
		Active:    true,
		TxHash:    txHash,
		Timestamp: e.now(),
	})
	e.log.Info(ctx, "order placed",
		zap.Uint64("order_id", order.ID),
		zap.String("side", string(order.Side())),
		zap.Uint64("token_id", order.TokenID),
		zap.Int64("price", order.Price),
		zap.Int64("amount", order.Amount))

	return &PlaceReceipt{TransactionHash: txHash, OrderID: order.ID}, nil
}

// FillOrder settles fillAmount of the given order against the taker.
// The whole fill is atomic: the remaining-quantity check, both transfer
// legs and the Filled/Active mutation happen with the order locked, and
// a failed leg rolls the other back before the error surfaces.
func (e *Engine) FillOrder(ctx context.Context, taker string, orderID uint64, fillAmount int64) (*FillReceipt, error) {
	if taker == "" || fillAmount <= 0 {
		return nil, fmt.Errorf("%w: fill amount must be positive", ErrInvalidParameters)
	}

	updated, err := e.store.Mutate(ctx, orderID, func(o *Order) error {
		if !o.Fillable(e.now()) {
			return ErrOrderInactive
		}
		if o.Counterparty != "" && o.Counterparty != taker {
			return ErrCounterpartyRestricted
		}
		if fillAmount > o.Remaining() {
			return fmt.Errorf("%w: %d remaining, %d requested", ErrOverfillAttempt, o.Remaining(), fillAmount)
		}

		notional, err := notionalOf(o.Price, fillAmount)
		if err != nil {
			return err
		}

		buyer, seller := o.Maker, taker
		if !o.IsBuy {
			buyer, seller = taker, o.Maker
		}

		pay := e.escrow.StablecoinLeg()
		asset := e.escrow.CreditLeg(o.TokenID)

		// The taker never pre-verified at place time; check their side
		// before touching balances so a missing approval surfaces as an
		// escrow error, not a settlement one.
		if o.IsBuy {
			err = asset.Check(ctx, taker, fillAmount)
		} else {
			err = pay.Check(ctx, taker, notional)
		}
		if err != nil {
			return err
		}

		if err := pay.Collect(ctx, buyer, notional); err != nil {
			return fmt.Errorf("%w: collect stablecoin: %v", ErrSettlementTransferFailed, err)
		}
		// Aborted fills refund through Refund, not Release: Release
		// only pays value back, while the buyer's collection also burned
		// allowance that must survive for later fills of the same order.
		if err := asset.Collect(ctx, seller, fillAmount); err != nil {
			if rerr := pay.Refund(ctx, buyer, notional); rerr != nil {
				e.log.Error(ctx, "stablecoin refund failed after aborted fill",
					zap.Uint64("order_id", o.ID), zap.Error(rerr))
			}
			return fmt.Errorf("%w: collect credits: %v", ErrSettlementTransferFailed, err)
		}
		if err := pay.Release(ctx, seller, notional); err != nil {
			if rerr := asset.Refund(ctx, seller, fillAmount); rerr != nil {
				e.log.Error(ctx, "credit refund failed after aborted fill",
					zap.Uint64("order_id", o.ID), zap.Error(rerr))
			}
			if rerr := pay.Refund(ctx, buyer, notional); rerr != nil {
				e.log.Error(ctx, "stablecoin refund failed after aborted fill",
					zap.Uint64("order_id", o.ID), zap.Error(rerr))
			}
			return fmt.Errorf("%w: release stablecoin: %v", ErrSettlementTransferFailed, err)
		}
		if err := asset.Release(ctx, buyer, fillAmount); err != nil {
			return fmt.Errorf("%w: release credits: %v", ErrSettlementTransferFailed, err)
		}

		o.Filled += fillAmount
		if o.Filled == o.Amount {
			o.Active = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	txHash := escrow.TxHash()
	e.record(&journal.OrderEvent{
		EventID:   journal.NewEventID(updated.ID, journal.EventFilled, updated.Filled),
		OrderID:   updated.ID,
		Type:      journal.EventFilled,
		Maker:     updated.Maker,
		Taker:     taker,
		TokenID:   updated.TokenID,
		IsBuy:     updated.IsBuy,
		Price:     updated.Price,
		Qty:       fillAmount,
		Filled:    updated.Filled,
		Active:    updated.Active,
		TxHash:    txHash,
		Timestamp: e.now(),
	})
	e.log.Info(ctx, "order filled",
		zap.Uint64("order_id", updated.ID),
		zap.Int64("fill_amount", fillAmount),
		zap.Int64("filled", updated.Filled),
		zap.Bool("active", updated.Active))

	return &FillReceipt{
		TransactionHash: txHash,
		OrderID:         updated.ID,
		FillAmount:      fillAmount,
		Filled:          updated.Filled,
		Active:          updated.Active,
	}, nil
}

// CancelOrder closes an open order. Only the maker may cancel; the
// record stays queryable with Active false.
func (e *Engine) CancelOrder(ctx context.Context, maker string, orderID uint64) (*FillReceipt, error) {
	updated, err := e.store.Mutate(ctx, orderID, func(o *Order) error {
		if !o.Active {
			return ErrOrderInactive
		}
		if o.Maker != maker {
			return ErrNotMaker
		}
		o.Active = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	txHash := escrow.TxHash()
	e.record(&journal.OrderEvent{
		EventID:   journal.NewEventID(updated.ID, journal.EventClosed, updated.Filled),
		OrderID:   updated.ID,
		Type:      journal.EventClosed,
		Maker:     updated.Maker,
		TokenID:   updated.TokenID,
		IsBuy:     updated.IsBuy,
		Price:     updated.Price,
		Filled:    updated.Filled,
		Active:    false,
		TxHash:    txHash,
		Timestamp: e.now(),
	})
	e.log.Info(ctx, "order cancelled", zap.Uint64("order_id", updated.ID))

	return &FillReceipt{TransactionHash: txHash, OrderID: updated.ID, Filled: updated.Filled}, nil
}

func (e *Engine) GetOrder(ctx context.Context, orderID uint64) (*Order, error) {
	return e.store.Get(ctx, orderID)
}

// IsOrderActive reports whether the order can still be filled. An
// expired order answers false here even though its stored record keeps
// Active true until a close is written.
func (e *Engine) IsOrderActive(ctx context.Context, orderID uint64) (bool, error) {
	order, err := e.store.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Fillable(e.now()), nil
}

func (e *Engine) NextOrderID(ctx context.Context) (uint64, error) {
	return e.store.NextOrderID(ctx)
}

func (e *Engine) record(ev *journal.OrderEvent) {
	if e.journal != nil {
		e.journal.Record(ev)
	}
}

// notionalOf computes price*amount in integer micro-units. Settlement
// totals must never round or truncate, so overflow is rejected outright.
func notionalOf(price, amount int64) (int64, error) {
	if price <= 0 || amount <= 0 {
		return 0, fmt.Errorf("%w: non-positive price or amount", ErrInvalidParameters)
	}
	if amount > math.MaxInt64/price {
		return 0, fmt.Errorf("%w: notional overflows", ErrInvalidParameters)
	}
	return price * amount, nil
}
