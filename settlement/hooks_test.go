package settlement

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-router/types"
)

func TestClassifyHook(t *testing.T) {
	cfg := testNetworkConfig()

	t.Run("transfer", func(t *testing.T) {
		cls := ClassifyHook(&cfg, testTransferHook)
		if !cls.BuiltIn || cls.Type != HookTypeTransfer {
			t.Fatalf("classification = %+v", cls)
		}
		if cls.GasOverhead == 0 {
			t.Fatal("transfer hook has no gas overhead")
		}
	})

	t.Run("split", func(t *testing.T) {
		cls := ClassifyHook(&cfg, testSplitHook)
		if !cls.BuiltIn || cls.Type != HookTypeSplit {
			t.Fatalf("classification = %+v", cls)
		}
	})

	t.Run("unknown address is custom", func(t *testing.T) {
		cls := ClassifyHook(&cfg, testCustomHook)
		if cls.BuiltIn || cls.Type != HookTypeCustom {
			t.Fatalf("classification = %+v", cls)
		}
	})

	t.Run("no hooks configured", func(t *testing.T) {
		bare := types.NetworkConfig{Network: "base", ChainID: 8453}
		cls := ClassifyHook(&bare, testTransferHook)
		if cls.BuiltIn {
			t.Fatal("hook classified as built-in on a network without hooks")
		}
	})
}

func TestValidateTransferHookData(t *testing.T) {
	cls := HookClassification{BuiltIn: true, Type: HookTypeTransfer}
	amount := big.NewInt(1_000_000)

	if v := ValidateHookData(cls, nil, amount); !v.Valid {
		t.Fatalf("empty hook data rejected: %s", v.Reason)
	}
	if v := ValidateHookData(cls, []byte{0x01}, amount); v.Valid {
		t.Fatal("transfer hook accepted hook data")
	}
	if v := ValidateHookData(cls, nil, big.NewInt(-1)); v.Valid {
		t.Fatal("negative hook amount accepted")
	}
}

func TestValidateSplitHookData(t *testing.T) {
	cls := HookClassification{BuiltIn: true, Type: HookTypeSplit}
	amount := big.NewInt(1_000_000)

	a := common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	b := common.HexToAddress("0x00000000000000000000000000000000000000Bb")

	encode := func(t *testing.T, recipients []common.Address, shares []*big.Int) []byte {
		t.Helper()
		data, err := EncodeSplitData(recipients, shares)
		if err != nil {
			t.Fatalf("encode split data: %v", err)
		}
		return data
	}

	t.Run("valid split", func(t *testing.T) {
		data := encode(t, []common.Address{a, b}, []*big.Int{big.NewInt(6000), big.NewInt(4000)})
		if v := ValidateHookData(cls, data, amount); !v.Valid {
			t.Fatalf("valid split rejected: %s", v.Reason)
		}
	})

	t.Run("partial distribution allowed", func(t *testing.T) {
		data := encode(t, []common.Address{a}, []*big.Int{big.NewInt(2500)})
		if v := ValidateHookData(cls, data, amount); !v.Valid {
			t.Fatalf("partial split rejected: %s", v.Reason)
		}
	})

	t.Run("shares above 10000 bps", func(t *testing.T) {
		data := encode(t, []common.Address{a, b}, []*big.Int{big.NewInt(9000), big.NewInt(2000)})
		if v := ValidateHookData(cls, data, amount); v.Valid {
			t.Fatal("over-distributing split accepted")
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		data := encode(t, []common.Address{a, b}, []*big.Int{big.NewInt(5000)})
		if v := ValidateHookData(cls, data, amount); v.Valid {
			t.Fatal("mismatched arrays accepted")
		}
	})

	t.Run("zero recipient", func(t *testing.T) {
		data := encode(t, []common.Address{{}}, []*big.Int{big.NewInt(5000)})
		if v := ValidateHookData(cls, data, amount); v.Valid {
			t.Fatal("zero-address recipient accepted")
		}
	})

	t.Run("zero share", func(t *testing.T) {
		data := encode(t, []common.Address{a}, []*big.Int{big.NewInt(0)})
		if v := ValidateHookData(cls, data, amount); v.Valid {
			t.Fatal("zero share accepted")
		}
	})

	t.Run("empty recipients", func(t *testing.T) {
		data := encode(t, []common.Address{}, []*big.Int{})
		if v := ValidateHookData(cls, data, amount); v.Valid {
			t.Fatal("empty split accepted")
		}
	})

	t.Run("garbage data", func(t *testing.T) {
		if v := ValidateHookData(cls, []byte{0xde, 0xad, 0xbe, 0xef}, amount); v.Valid {
			t.Fatal("undecodable split data accepted")
		}
	})
}

func TestValidateHookDataCustomHook(t *testing.T) {
	cls := HookClassification{BuiltIn: false, Type: HookTypeCustom}
	if v := ValidateHookData(cls, nil, big.NewInt(1)); v.Valid {
		t.Fatal("custom hook passed static validation")
	}
}
