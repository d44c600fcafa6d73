package keyring

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/pem"
	"io"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/zeebo/blake3"

	"github.com/enbox/enbox/internal/codec"
	"github.com/enbox/enbox/internal/errors"
)

const (
	publicKeyBlockType = "ENBOX PUBLIC KEY"

	headerEmail     = "Email"
	headerRecipient = "Recipient"
	headerCreated   = "Created"

	privateKeyVersion = 1
)

// PublicKey is the public half of the repository keypair.
type PublicKey struct {
	Email      string
	Recipient  *age.X25519Recipient
	SigningKey ed25519.PublicKey
	Created    time.Time
}

// Fingerprint identifies the keypair. It is the BLAKE3 hash of the signing
// key and the recipient.
func (p *PublicKey) Fingerprint() string {
	h := blake3.New()
	_, _ = h.Write(p.SigningKey)
	_, _ = h.Write([]byte(p.Recipient.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func (p *PublicKey) encode() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type: publicKeyBlockType,
		Headers: map[string]string{
			headerEmail:     p.Email,
			headerRecipient: p.Recipient.String(),
			headerCreated:   p.Created.Format(time.RFC3339),
		},
		Bytes: p.SigningKey,
	})
}

func decodePublicKey(data []byte) (*PublicKey, error) {
	blk, _ := pem.Decode(data)
	if blk == nil || blk.Type != publicKeyBlockType {
		return nil, errors.New("no public key block found")
	}
	if len(blk.Bytes) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid signing key length %d", len(blk.Bytes))
	}

	recipient, err := age.ParseX25519Recipient(blk.Headers[headerRecipient])
	if err != nil {
		return nil, errors.Wrap(err, "parse recipient")
	}

	created, err := time.Parse(time.RFC3339, blk.Headers[headerCreated])
	if err != nil {
		return nil, errors.Wrap(err, "parse creation time")
	}

	return &PublicKey{
		Email:      blk.Headers[headerEmail],
		Recipient:  recipient,
		SigningKey: ed25519.PublicKey(blk.Bytes),
		Created:    created,
	}, nil
}

// PrivateKey is the unlocked private half of the repository keypair. It only
// exists in memory.
type PrivateKey struct {
	identity *age.X25519Identity
	signing  ed25519.PrivateKey
}

type privateKeyRecord struct {
	Version    uint   `cbor:"1,keyasint"`
	Identity   string `cbor:"2,keyasint"`
	SigningKey []byte `cbor:"3,keyasint"`
}

func generatePrivateKey() (*PrivateKey, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, errors.Wrap(err, "generate identity")
	}

	_, signing, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "generate signing key")
	}

	return &PrivateKey{identity: identity, signing: signing}, nil
}

// Recipient returns the age recipient of the key.
func (k *PrivateKey) Recipient() *age.X25519Recipient {
	return k.identity.Recipient()
}

// Identity returns the age identity of the key.
func (k *PrivateKey) Identity() *age.X25519Identity {
	return k.identity
}

// SigningKey returns the public ed25519 key.
func (k *PrivateKey) SigningKey() ed25519.PublicKey {
	return k.signing.Public().(ed25519.PublicKey)
}

// Sign signs msg with the ed25519 key.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.signing, msg)
}

// Matches reports whether pub is the public half of k.
func (k *PrivateKey) Matches(pub *PublicKey) bool {
	return k.SigningKey().Equal(pub.SigningKey) && k.Recipient().String() == pub.Recipient.String()
}

func (k *PrivateKey) wipe() {
	clear(k.signing)
	k.identity = nil
}

// seal encrypts the key with passphrase and returns the armored result.
func (k *PrivateKey) seal(passphrase string, workFactor int) ([]byte, error) {
	if workFactor < 1 || workFactor > 30 {
		return nil, errors.Errorf("invalid work factor %d", workFactor)
	}

	payload, err := codec.Marshal(privateKeyRecord{
		Version:    privateKeyVersion,
		Identity:   k.identity.String(),
		SigningKey: k.signing.Seed(),
	})
	if err != nil {
		return nil, err
	}
	defer clear(payload)

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "age.NewScryptRecipient")
	}
	recipient.SetWorkFactor(workFactor)

	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)

	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return nil, errors.Wrap(err, "age.Encrypt")
	}
	if _, err := w.Write(payload); err != nil {
		return nil, errors.Wrap(err, "write private key")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "finalize private key")
	}
	if err := aw.Close(); err != nil {
		return nil, errors.Wrap(err, "armor")
	}

	return buf.Bytes(), nil
}

// openPrivateKey decrypts an armored private key with passphrase.
func openPrivateKey(data []byte, passphrase string) (*PrivateKey, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "age.NewScryptIdentity")
	}

	rd, err := age.Decrypt(armor.NewReader(bytes.NewReader(data)), identity)
	if err != nil {
		return nil, errors.Wrap(err, "age.Decrypt")
	}

	payload, err := io.ReadAll(rd)
	if err != nil {
		return nil, errors.Wrap(err, "read private key")
	}
	defer clear(payload)

	var rec privateKeyRecord
	if err := codec.Unmarshal(payload, &rec); err != nil {
		return nil, err
	}
	defer clear(rec.SigningKey)

	if rec.Version != privateKeyVersion {
		return nil, errors.Errorf("unsupported private key version %d", rec.Version)
	}
	if len(rec.SigningKey) != ed25519.SeedSize {
		return nil, errors.Errorf("invalid signing key seed length %d", len(rec.SigningKey))
	}

	x, err := age.ParseX25519Identity(rec.Identity)
	if err != nil {
		return nil, errors.Wrap(err, "parse identity")
	}

	return &PrivateKey{
		identity: x,
		signing:  ed25519.NewKeyFromSeed(rec.SigningKey),
	}, nil
}
