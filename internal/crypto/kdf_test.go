package crypto

import (
	"testing"
	"time"
)

var testParams = Params{N: 1024, R: 8, P: 1}

func TestCalibrate(t *testing.T) {
	params, err := Calibrate(100*time.Millisecond, 50)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("testing calibrate, params after: %v", params)
}

func TestKDFDeterministic(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatal(err)
	}

	k1, err := KDF(testParams, salt, "passphrase")
	if err != nil {
		t.Fatal(err)
	}
	k2, err := KDF(testParams, salt, "passphrase")
	if err != nil {
		t.Fatal(err)
	}

	if k1.EncryptionKey != k2.EncryptionKey || k1.ReferenceKey != k2.ReferenceKey {
		t.Fatal("KDF is not deterministic")
	}
	if k1.EncryptionKey == EncryptionKey(k1.ReferenceKey) {
		t.Fatal("encryption and reference key must differ")
	}

	k3, err := KDF(testParams, salt, "other passphrase")
	if err != nil {
		t.Fatal(err)
	}
	if k1.EncryptionKey == k3.EncryptionKey {
		t.Fatal("different passphrases derived the same key")
	}
}

func TestKDFInvalid(t *testing.T) {
	if _, err := KDF(testParams, []byte("short"), "passphrase"); err == nil {
		t.Fatal("short salt accepted")
	}

	salt, _ := NewSalt()
	if _, err := KDF(Params{N: 3, R: 1, P: 1}, salt, "passphrase"); err == nil {
		t.Fatal("N that is not a power of two accepted")
	}
}
