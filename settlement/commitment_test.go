package settlement

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestComputeCommitmentDeterministic(t *testing.T) {
	p := testParams(t)
	first := ComputeCommitment(p)
	second := ComputeCommitment(p)
	if first != second {
		t.Fatalf("commitment not deterministic: %s vs %s", first.Hex(), second.Hex())
	}
	if first == (common.Hash{}) {
		t.Fatal("commitment is zero")
	}
}

func TestComputeCommitmentFieldSensitivity(t *testing.T) {
	base := ComputeCommitment(testParams(t))

	mutations := map[string]func(*CommitmentParams){
		"chainId":        func(p *CommitmentParams) { p.ChainID = big.NewInt(1) },
		"router":         func(p *CommitmentParams) { p.Router = testCustomHook },
		"token":          func(p *CommitmentParams) { p.Token = testPayTo },
		"payer":          func(p *CommitmentParams) { p.Payer = testPayTo },
		"value":          func(p *CommitmentParams) { p.Value = big.NewInt(2_000_000) },
		"validAfter":     func(p *CommitmentParams) { p.ValidAfter.Add(p.ValidAfter, big.NewInt(1)) },
		"validBefore":    func(p *CommitmentParams) { p.ValidBefore.Add(p.ValidBefore, big.NewInt(1)) },
		"salt":           func(p *CommitmentParams) { p.Salt[0] ^= 0xff },
		"payTo":          func(p *CommitmentParams) { p.PayTo = testRouter },
		"facilitatorFee": func(p *CommitmentParams) { p.FacilitatorFee = big.NewInt(0) },
		"hook":           func(p *CommitmentParams) { p.Hook = testSplitHook },
		"hookData":       func(p *CommitmentParams) { p.HookData = []byte{0x01} },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := testParams(t)
			mutate(p)
			if got := ComputeCommitment(p); got == base {
				t.Fatalf("changing %s did not change the commitment", name)
			}
		})
	}
}

func TestComputeCommitmentHookDataLength(t *testing.T) {
	// Hook data enters the packing as its own hash, so data of any
	// length must produce a distinct, fixed-size contribution.
	p := testParams(t)
	p.HookData = make([]byte, 4096)
	long := ComputeCommitment(p)

	p2 := testParams(t)
	p2.HookData = make([]byte, 4097)
	longer := ComputeCommitment(p2)

	if long == longer {
		t.Fatal("different hook data produced the same commitment")
	}
}

func TestValidateCommitmentParams(t *testing.T) {
	cases := map[string]func(*CommitmentParams){
		"nil chainId":     func(p *CommitmentParams) { p.ChainID = nil },
		"zero chainId":    func(p *CommitmentParams) { p.ChainID = big.NewInt(0) },
		"zero router":     func(p *CommitmentParams) { p.Router = common.Address{} },
		"zero token":      func(p *CommitmentParams) { p.Token = common.Address{} },
		"zero payer":      func(p *CommitmentParams) { p.Payer = common.Address{} },
		"zero payTo":      func(p *CommitmentParams) { p.PayTo = common.Address{} },
		"nil value":       func(p *CommitmentParams) { p.Value = nil },
		"negative value":  func(p *CommitmentParams) { p.Value = big.NewInt(-1) },
		"nil fee":         func(p *CommitmentParams) { p.FacilitatorFee = nil },
		"negative fee":    func(p *CommitmentParams) { p.FacilitatorFee = big.NewInt(-1) },
		"nil validAfter":  func(p *CommitmentParams) { p.ValidAfter = nil },
		"inverted window": func(p *CommitmentParams) { p.ValidBefore = new(big.Int).Sub(p.ValidAfter, big.NewInt(1)) },
		"empty window":    func(p *CommitmentParams) { p.ValidBefore = new(big.Int).Set(p.ValidAfter) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := testParams(t)
			mutate(p)
			if err := ValidateCommitmentParams(p); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}

	t.Run("valid params pass", func(t *testing.T) {
		if err := ValidateCommitmentParams(testParams(t)); err != nil {
			t.Fatalf("valid params rejected: %v", err)
		}
	})

	t.Run("nil params", func(t *testing.T) {
		if err := ValidateCommitmentParams(nil); err == nil {
			t.Fatal("expected nil params to be rejected")
		}
	})
}
