package utils

import (
	"math/big"
	"strings"
	"testing"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x036cbd53842c5426634e7929541ec2318f3dcf7e")
	if err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	// Normalized to checksum form.
	if addr.Hex() != "0x036CbD53842c5426634e7929541eC2318f3dCF7e" {
		t.Fatalf("address = %s", addr.Hex())
	}

	for _, bad := range []string{"", "0x1234", "not-an-address", "0xZZ36cbd53842c5426634e7929541ec2318f3dcf7e"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("accepted %q", bad)
		}
	}
}

func TestParseBigInt(t *testing.T) {
	v, err := ParseBigInt("1000000")
	if err != nil || v.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("v = %v, err = %v", v, err)
	}
	if _, err := ParseBigInt("0"); err != nil {
		t.Errorf("zero rejected: %v", err)
	}
	for _, bad := range []string{"", "-1", "1.5", "0x10", "abc"} {
		if _, err := ParseBigInt(bad); err == nil {
			t.Errorf("accepted %q", bad)
		}
	}
}

func TestDecodeHex(t *testing.T) {
	for _, empty := range []string{"", "0x"} {
		b, err := DecodeHex(empty)
		if err != nil || len(b) != 0 {
			t.Errorf("DecodeHex(%q) = %x, %v", empty, b, err)
		}
	}

	b, err := DecodeHex("0xdeadbeef")
	if err != nil || len(b) != 4 {
		t.Fatalf("b = %x, err = %v", b, err)
	}
	bare, err := DecodeHex("deadbeef")
	if err != nil || len(bare) != 4 {
		t.Fatalf("unprefixed hex rejected: %v", err)
	}
	if _, err := DecodeHex("0xzz"); err == nil {
		t.Error("invalid hex accepted")
	}
}

func TestDecodeSalt(t *testing.T) {
	salt, err := DecodeSalt("0x" + strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("valid salt rejected: %v", err)
	}
	if salt[0] != 0xab || salt[31] != 0xab {
		t.Fatal("salt bytes wrong")
	}
	if _, err := DecodeSalt("0xabcd"); err == nil {
		t.Error("short salt accepted")
	}
	if _, err := DecodeSalt("0x" + strings.Repeat("ab", 33)); err == nil {
		t.Error("long salt accepted")
	}
}

func TestDecodeSignature(t *testing.T) {
	sig, err := DecodeSignature("0x" + strings.Repeat("01", 65))
	if err != nil || len(sig) != 65 {
		t.Fatalf("sig len = %d, err = %v", len(sig), err)
	}
	if _, err := DecodeSignature("0x" + strings.Repeat("01", 64)); err == nil {
		t.Error("64-byte signature accepted")
	}
}

func TestAtomicToDecimal(t *testing.T) {
	d := AtomicToDecimal(big.NewInt(1_234_567), 6)
	if d.String() != "1.234567" {
		t.Fatalf("d = %s", d)
	}
	if z := AtomicToDecimal(big.NewInt(0), 6); !z.IsZero() {
		t.Fatalf("zero = %s", z)
	}
}
