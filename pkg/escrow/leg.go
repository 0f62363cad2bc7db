package escrow

import (
	"context"
	"fmt"
)

// Leg is one side of a trade. Every trade has a payment leg (stablecoin)
// and an asset leg (credit token); each variant knows how to verify its
// own approval model and how to move value through custody, which keeps
// order placement and filling symmetric instead of branching on isBuy at
// every call site.
type Leg interface {
	// Check verifies the party's approval covers moving qty units.
	Check(ctx context.Context, party string, qty int64) error
	// Collect moves qty units from the party into custody.
	Collect(ctx context.Context, party string, qty int64) error
	// Release pays qty units out of custody to the party.
	Release(ctx context.Context, party string, qty int64) error
	// Refund undoes a Collect when the trade aborts: value returns to
	// the party and any approval the collection consumed is restored.
	Refund(ctx context.Context, party string, qty int64) error
}

type stablecoinLeg struct {
	gw *Gateway
}

func (l *stablecoinLeg) Check(ctx context.Context, party string, qty int64) error {
	if l.gw.stablecoin.Allowance(party, l.gw.custody) < qty {
		return fmt.Errorf("%w: stablecoin allowance below %d", ErrInsufficientApproval, qty)
	}
	return nil
}

func (l *stablecoinLeg) Collect(ctx context.Context, party string, qty int64) error {
	return l.gw.stablecoin.TransferFrom(l.gw.custody, party, l.gw.custody, qty)
}

func (l *stablecoinLeg) Release(ctx context.Context, party string, qty int64) error {
	return l.gw.stablecoin.Transfer(l.gw.custody, party, qty)
}

func (l *stablecoinLeg) Refund(ctx context.Context, party string, qty int64) error {
	return l.gw.stablecoin.Refund(l.gw.custody, party, qty)
}

type creditLeg struct {
	gw      *Gateway
	tokenID uint64
}

func (l *creditLeg) Check(ctx context.Context, party string, qty int64) error {
	if !l.gw.credit.IsApprovedForAll(party, l.gw.custody) {
		return fmt.Errorf("%w: no operator approval on credit collection", ErrInsufficientApproval)
	}
	return nil
}

func (l *creditLeg) Collect(ctx context.Context, party string, qty int64) error {
	return l.gw.credit.SafeTransferFrom(l.gw.custody, party, l.gw.custody, l.tokenID, qty)
}

func (l *creditLeg) Release(ctx context.Context, party string, qty int64) error {
	return l.gw.credit.SafeTransferFrom(l.gw.custody, l.gw.custody, party, l.tokenID, qty)
}

// Refund matches Release for credits: operator approval is a standing
// grant, so nothing beyond the balance needs restoring.
func (l *creditLeg) Refund(ctx context.Context, party string, qty int64) error {
	return l.gw.credit.SafeTransferFrom(l.gw.custody, l.gw.custody, party, l.tokenID, qty)
}
