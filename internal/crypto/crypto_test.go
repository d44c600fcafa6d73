package crypto_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/errors"
	rtest "github.com/enbox/enbox/internal/test"
)

func TestEncryptDecrypt(t *testing.T) {
	k := crypto.NewRandomKey()

	for _, size := range []int{0, 5, 23, 16 << 10, 2<<18 + 23, 1 << 20} {
		data := rtest.Random(42, size)
		buf := make([]byte, 0, size+crypto.Extension)

		nonce := crypto.NewRandomNonce()
		ciphertext := k.Seal(buf[:0], nonce, data, nil)
		rtest.Assert(t, len(ciphertext) == len(data)+k.Overhead(),
			"ciphertext length does not match: want %d, got %d",
			len(data)+k.Overhead(), len(ciphertext))

		plaintext, err := k.Open(nil, nonce, ciphertext, nil)
		rtest.OK(t, err)
		rtest.Assert(t, bytes.Equal(plaintext, data), "wrong plaintext returned for size %d", size)
	}
}

func TestSameBuffer(t *testing.T) {
	k := crypto.NewRandomKey()

	data := make([]byte, 600)
	_, err := io.ReadFull(rand.Reader, data)
	rtest.OK(t, err)

	ciphertext := make([]byte, 0, len(data)+crypto.Extension)

	nonce := crypto.NewRandomNonce()
	ciphertext = k.Seal(ciphertext, nonce, data, nil)

	// use the same buffer for decryption
	ciphertext, err = k.Open(ciphertext[:0], nonce, ciphertext, nil)
	rtest.OK(t, err)
	rtest.Assert(t, bytes.Equal(ciphertext, data), "wrong plaintext returned")
}

func TestCornerCases(t *testing.T) {
	k := crypto.NewRandomKey()

	// check that encrypting an empty plaintext produces just the tag
	nonce := crypto.NewRandomNonce()
	c := k.Seal(nil, nonce, []byte{}, nil)
	rtest.Assert(t, len(c) == crypto.TagSize,
		"wrong length returned for ciphertext, expected %d, got %d",
		crypto.TagSize, len(c))

	// this should decrypt to nil
	p, err := k.Open(nil, nonce, c, nil)
	rtest.OK(t, err)
	rtest.Equals(t, []byte(nil), p)

	// test encryption for same slice, this should return an error
	_, err = k.Open(nil, nonce, []byte{1, 2, 3}, nil)
	rtest.Assert(t, err != nil, "short ciphertext accepted")

	_, err = k.Open(nil, make([]byte, crypto.NonceSize), c, nil)
	rtest.Assert(t, err != nil, "zero nonce accepted")
}

func TestTamper(t *testing.T) {
	k := crypto.NewRandomKey()
	data := rtest.Random(23, 4096)
	ad := []byte("additional")

	nonce, ciphertext, tag := k.SealDetached(data, ad)
	rtest.Equals(t, crypto.NonceSize, len(nonce))
	rtest.Equals(t, crypto.TagSize, len(tag))
	rtest.Equals(t, len(data), len(ciphertext))

	plaintext, err := k.OpenDetached(nonce, ciphertext, tag, ad)
	rtest.OK(t, err)
	rtest.Equals(t, data, plaintext)

	for _, pos := range []int{0, 100, len(ciphertext) - 1} {
		broken := append([]byte(nil), ciphertext...)
		broken[pos] ^= 0x01
		_, err = k.OpenDetached(nonce, broken, tag, ad)
		rtest.ErrorIs(t, err, crypto.ErrUnauthenticated)
	}

	for pos := range tag {
		broken := append([]byte(nil), tag...)
		broken[pos] ^= 0x80
		_, err = k.OpenDetached(nonce, ciphertext, broken, ad)
		rtest.ErrorIs(t, err, crypto.ErrUnauthenticated)
	}

	_, err = k.OpenDetached(nonce, ciphertext, tag, []byte("other"))
	rtest.ErrorIs(t, err, crypto.ErrUnauthenticated)

	_, err = crypto.NewRandomKey().OpenDetached(nonce, ciphertext, tag, ad)
	rtest.ErrorIs(t, err, crypto.ErrUnauthenticated)
}

func TestFreshNonce(t *testing.T) {
	k := crypto.NewRandomKey()
	data := []byte("same plaintext, every time")

	n1, c1, _ := k.SealDetached(data, nil)
	n2, c2, _ := k.SealDetached(data, nil)

	rtest.Assert(t, !bytes.Equal(n1, n2), "nonce was reused")
	rtest.Assert(t, !bytes.Equal(c1, c2), "identical ciphertext for fresh nonces")
}

func TestPacked(t *testing.T) {
	k := crypto.NewRandomKey()
	data := rtest.Random(5, 1000)

	packed := k.SealPacked(data, []byte("name"))
	rtest.Equals(t, len(data)+crypto.Extension, len(packed))

	plaintext, err := k.OpenPacked(packed, []byte("name"))
	rtest.OK(t, err)
	rtest.Equals(t, data, plaintext)

	_, err = k.OpenPacked(packed, []byte("other name"))
	rtest.Assert(t, errors.Is(err, crypto.ErrUnauthenticated), "wrong additional data accepted: %v", err)

	_, err = k.OpenPacked(packed[:10], nil)
	rtest.Assert(t, err != nil, "truncated data accepted")
}

func TestKeyWipe(t *testing.T) {
	k := crypto.NewRandomKey()
	rtest.Assert(t, k.Valid(), "random key is invalid")
	k.Wipe()
	rtest.Assert(t, !k.Valid(), "wiped key is still valid")

	_, err := k.MarshalJSON()
	rtest.Assert(t, err != nil, "key material must not be serialized")
}

func BenchmarkEncrypt(b *testing.B) {
	size := 8 << 20 // 8MiB
	data := make([]byte, size)

	k := crypto.NewRandomKey()
	buf := make([]byte, len(data)+crypto.Extension)
	nonce := crypto.NewRandomNonce()

	b.ResetTimer()
	b.SetBytes(int64(size))

	for i := 0; i < b.N; i++ {
		_ = k.Seal(buf[:0], nonce, data, nil)
	}
}

func BenchmarkDecrypt(b *testing.B) {
	size := 8 << 20 // 8MiB
	data := make([]byte, size)

	k := crypto.NewRandomKey()

	plaintext := make([]byte, 0, size)
	ciphertext := make([]byte, 0, size+crypto.Extension)
	nonce := crypto.NewRandomNonce()
	ciphertext = k.Seal(ciphertext, nonce, data, nil)

	var err error

	b.ResetTimer()
	b.SetBytes(int64(size))

	for i := 0; i < b.N; i++ {
		_, err = k.Open(plaintext, nonce, ciphertext, nil)
		rtest.OK(b, err)
	}
}
