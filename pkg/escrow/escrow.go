package escrow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evergrid/creditbook/pkg/logging"
	"github.com/evergrid/creditbook/pkg/token"
)

var (
	ErrApprovalRejected     = errors.New("approval rejected")
	ErrInsufficientApproval = errors.New("insufficient approval")
	ErrEscrowCallFailed     = errors.New("escrow call failed")
)

// Receipt acknowledges an approval request.
type Receipt struct {
	TransactionHash string
}

// Gateway wraps the two approval models the settlement step depends on:
// an exact stablecoin allowance and a collection-wide operator approval
// on the credit token. It checks and requests approvals, and moves value
// through its own custody account during settlement; it owns no order
// state.
type Gateway struct {
	stablecoin *token.Stablecoin
	credit     *token.CreditToken
	custody    string
	log        *logging.Logger
}

func NewGateway(stablecoin *token.Stablecoin, credit *token.CreditToken, custodyAccount string, log *logging.Logger) *Gateway {
	return &Gateway{
		stablecoin: stablecoin,
		credit:     credit,
		custody:    custodyAccount,
		log:        log,
	}
}

// ApproveGreenCredit grants the custody account operator approval over
// the owner's entire credit collection. Idempotent.
func (g *Gateway) ApproveGreenCredit(ctx context.Context, owner string) (*Receipt, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: empty owner", ErrApprovalRejected)
	}

	g.credit.SetApprovalForAll(owner, g.custody, true)
	g.log.Debug(ctx, "credit operator approval granted", zap.String("owner", owner))
	return &Receipt{TransactionHash: TxHash()}, nil
}

// ApproveStablecoin raises the owner's stablecoin allowance for the
// custody account to at least amount micro-units. An already sufficient
// allowance is left untouched.
func (g *Gateway) ApproveStablecoin(ctx context.Context, owner string, amount int64) (*Receipt, error) {
	if owner == "" || amount <= 0 {
		return nil, fmt.Errorf("%w: owner=%q amount=%d", ErrApprovalRejected, owner, amount)
	}

	if g.stablecoin.Allowance(owner, g.custody) < amount {
		if err := g.stablecoin.Approve(owner, g.custody, amount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrApprovalRejected, err)
		}
	}
	g.log.Debug(ctx, "stablecoin allowance granted",
		zap.String("owner", owner), zap.Int64("amount", amount))
	return &Receipt{TransactionHash: TxHash()}, nil
}

// StablecoinLeg returns the payment leg of a trade.
func (g *Gateway) StablecoinLeg() Leg {
	return &stablecoinLeg{gw: g}
}

// CreditLeg returns the asset leg of a trade for one credit batch.
func (g *Gateway) CreditLeg(tokenID uint64) Leg {
	return &creditLeg{gw: g, tokenID: tokenID}
}

// TxHash derives a pseudo transaction hash for a receipt. The reference
// deployment returns real chain hashes; this engine derives one from a
// fresh UUID so receipts stay unique and greppable in logs.
func TxHash() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return "0x" + hex.EncodeToString(sum[:])
}
