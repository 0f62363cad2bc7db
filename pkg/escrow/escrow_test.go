package escrow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/evergrid/creditbook/pkg/logging"
	"github.com/evergrid/creditbook/pkg/token"
)

func newTestGateway() (*Gateway, *token.Stablecoin, *token.CreditToken) {
	stablecoin := token.NewStablecoin()
	credit := token.NewCreditToken()
	gw := NewGateway(stablecoin, credit, "custody", logging.NewLogger(logging.ERROR))
	return gw, stablecoin, credit
}

func TestApproveGreenCreditIdempotent(t *testing.T) {
	gw, _, credit := newTestGateway()
	ctx := context.Background()

	if _, err := gw.ApproveGreenCredit(ctx, "alice"); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if _, err := gw.ApproveGreenCredit(ctx, "alice"); err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if !credit.IsApprovedForAll("alice", "custody") {
		t.Error("operator approval not in effect after double call")
	}
}

func TestApproveStablecoinKeepsHigherAllowance(t *testing.T) {
	gw, stablecoin, _ := newTestGateway()
	ctx := context.Background()

	if _, err := gw.ApproveStablecoin(ctx, "alice", 5_000_000); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// a smaller request must not clobber the existing allowance
	if _, err := gw.ApproveStablecoin(ctx, "alice", 1_000_000); err != nil {
		t.Fatalf("approve smaller: %v", err)
	}
	if got := stablecoin.Allowance("alice", "custody"); got != 5_000_000 {
		t.Errorf("allowance = %d, want 5000000", got)
	}
}

func TestApproveRejectsInvalidInput(t *testing.T) {
	gw, _, _ := newTestGateway()
	ctx := context.Background()

	if _, err := gw.ApproveStablecoin(ctx, "alice", 0); !errors.Is(err, ErrApprovalRejected) {
		t.Errorf("zero amount: expected ErrApprovalRejected, got %v", err)
	}
	if _, err := gw.ApproveGreenCredit(ctx, ""); !errors.Is(err, ErrApprovalRejected) {
		t.Errorf("empty owner: expected ErrApprovalRejected, got %v", err)
	}
}

func TestLegChecks(t *testing.T) {
	gw, stablecoin, credit := newTestGateway()
	ctx := context.Background()

	pay := gw.StablecoinLeg()
	asset := gw.CreditLeg(3)

	if err := pay.Check(ctx, "alice", 1_000_000); !errors.Is(err, ErrInsufficientApproval) {
		t.Errorf("expected ErrInsufficientApproval, got %v", err)
	}
	if err := stablecoin.Approve("alice", "custody", 1_000_000); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := pay.Check(ctx, "alice", 1_000_000); err != nil {
		t.Errorf("check after allowance: %v", err)
	}

	if err := asset.Check(ctx, "bob", 10); !errors.Is(err, ErrInsufficientApproval) {
		t.Errorf("expected ErrInsufficientApproval, got %v", err)
	}
	credit.SetApprovalForAll("bob", "custody", true)
	if err := asset.Check(ctx, "bob", 10); err != nil {
		t.Errorf("check after operator approval: %v", err)
	}
}

func TestLegCollectRelease(t *testing.T) {
	gw, stablecoin, credit := newTestGateway()
	ctx := context.Background()

	if err := stablecoin.Mint("alice", 2_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := stablecoin.Approve("alice", "custody", 2_000_000); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := credit.Mint("bob", 3, 50); err != nil {
		t.Fatalf("mint credit: %v", err)
	}
	credit.SetApprovalForAll("bob", "custody", true)

	pay := gw.StablecoinLeg()
	asset := gw.CreditLeg(3)

	if err := pay.Collect(ctx, "alice", 2_000_000); err != nil {
		t.Fatalf("collect pay: %v", err)
	}
	if err := asset.Collect(ctx, "bob", 50); err != nil {
		t.Fatalf("collect asset: %v", err)
	}
	if err := pay.Release(ctx, "bob", 2_000_000); err != nil {
		t.Fatalf("release pay: %v", err)
	}
	if err := asset.Release(ctx, "alice", 50); err != nil {
		t.Fatalf("release asset: %v", err)
	}

	if got := stablecoin.BalanceOf("bob"); got != 2_000_000 {
		t.Errorf("bob stablecoin = %d, want 2000000", got)
	}
	if got := credit.BalanceOf("alice", 3); got != 50 {
		t.Errorf("alice credits = %d, want 50", got)
	}
}

func TestLegRefundRestoresApproval(t *testing.T) {
	gw, stablecoin, credit := newTestGateway()
	ctx := context.Background()

	if err := stablecoin.Mint("alice", 2_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := stablecoin.Approve("alice", "custody", 2_000_000); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := credit.Mint("bob", 3, 50); err != nil {
		t.Fatalf("mint credit: %v", err)
	}
	credit.SetApprovalForAll("bob", "custody", true)

	pay := gw.StablecoinLeg()
	asset := gw.CreditLeg(3)

	if err := pay.Collect(ctx, "alice", 2_000_000); err != nil {
		t.Fatalf("collect pay: %v", err)
	}
	if err := asset.Collect(ctx, "bob", 50); err != nil {
		t.Fatalf("collect asset: %v", err)
	}
	if err := pay.Refund(ctx, "alice", 2_000_000); err != nil {
		t.Fatalf("refund pay: %v", err)
	}
	if err := asset.Refund(ctx, "bob", 50); err != nil {
		t.Fatalf("refund asset: %v", err)
	}

	// a refunded collection leaves the parties exactly where they started
	if got := stablecoin.BalanceOf("alice"); got != 2_000_000 {
		t.Errorf("alice stablecoin = %d, want 2000000", got)
	}
	if got := stablecoin.Allowance("alice", "custody"); got != 2_000_000 {
		t.Errorf("alice allowance = %d, want 2000000", got)
	}
	if got := credit.BalanceOf("bob", 3); got != 50 {
		t.Errorf("bob credits = %d, want 50", got)
	}
	if !credit.IsApprovedForAll("bob", "custody") {
		t.Error("operator approval lost after refund")
	}
}

func TestTxHashShape(t *testing.T) {
	h := TxHash()
	if !strings.HasPrefix(h, "0x") || len(h) != 66 {
		t.Errorf("unexpected tx hash %q", h)
	}
	if h == TxHash() {
		t.Error("tx hashes must be unique")
	}
}
