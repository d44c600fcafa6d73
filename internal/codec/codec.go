// Package codec provides the CBOR encoding used for every record enbox keeps
// on disk: block records, blob records, the private key payload and the
// revocation statement.
package codec

import (
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/enbox/enbox/internal/errors"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// record always encodes to the same bytes. Signatures over encoded
// statements rely on that.
var encMode cbor.EncMode

// decMode ignores unknown fields so older binaries can read newer records.
// A blob record holds one ref per chunk, so arrays are only bounded by the
// largest limit the decoder supports.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	buf, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "cbor.Marshal")
	}
	return buf, nil
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "cbor.Unmarshal")
	}
	return nil
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// NewEncoder returns a CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation for data. The check command
// uses it to show undecodable records.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
