package keyring

import (
	"crypto/ed25519"
	"encoding/pem"
	"time"

	"github.com/enbox/enbox/internal/codec"
	"github.com/enbox/enbox/internal/errors"
)

const (
	revocationBlockType = "ENBOX REVOCATION CERTIFICATE"
	revocationVersion   = 1
)

// RevocationStatement declares the keypair with the given fingerprint
// revoked. It is signed at init time and kept for later publication.
type RevocationStatement struct {
	Version     uint      `cbor:"1,keyasint"`
	Fingerprint string    `cbor:"2,keyasint"`
	Email       string    `cbor:"3,keyasint"`
	Recipient   string    `cbor:"4,keyasint"`
	Created     time.Time `cbor:"5,keyasint"`
	Reason      string    `cbor:"6,keyasint"`
}

// RevocationCertificate is a signed RevocationStatement.
type RevocationCertificate struct {
	Statement RevocationStatement

	raw       []byte
	signature []byte
}

type revocationRecord struct {
	Statement []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

func newRevocationCertificate(priv *PrivateKey, pub *PublicKey) (*RevocationCertificate, error) {
	st := RevocationStatement{
		Version:     revocationVersion,
		Fingerprint: pub.Fingerprint(),
		Email:       pub.Email,
		Recipient:   pub.Recipient.String(),
		Created:     pub.Created,
		Reason:      "key compromised or no longer in use",
	}

	raw, err := codec.Marshal(st)
	if err != nil {
		return nil, err
	}

	return &RevocationCertificate{
		Statement: st,
		raw:       raw,
		signature: priv.Sign(raw),
	}, nil
}

// Verify checks that the certificate was signed by pub and refers to it.
func (c *RevocationCertificate) Verify(pub *PublicKey) error {
	if !ed25519.Verify(pub.SigningKey, c.raw, c.signature) {
		return errors.New("revocation certificate: invalid signature")
	}
	if c.Statement.Fingerprint != pub.Fingerprint() {
		return errors.New("revocation certificate: fingerprint does not match the public key")
	}
	return nil
}

func (c *RevocationCertificate) encode() ([]byte, error) {
	buf, err := codec.Marshal(revocationRecord{Statement: c.raw, Signature: c.signature})
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: revocationBlockType, Bytes: buf}), nil
}

func decodeRevocationCertificate(data []byte) (*RevocationCertificate, error) {
	blk, _ := pem.Decode(data)
	if blk == nil || blk.Type != revocationBlockType {
		return nil, errors.New("no revocation certificate block found")
	}

	var rec revocationRecord
	if err := codec.Unmarshal(blk.Bytes, &rec); err != nil {
		return nil, err
	}

	c := &RevocationCertificate{raw: rec.Statement, signature: rec.Signature}
	if err := codec.Unmarshal(rec.Statement, &c.Statement); err != nil {
		return nil, err
	}
	if c.Statement.Version != revocationVersion {
		return nil, errors.Errorf("unsupported revocation certificate version %d", c.Statement.Version)
	}
	return c, nil
}
