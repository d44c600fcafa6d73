package backend

import (
	"bytes"
	"hash"
	"io"
)

// RewindReader yields one record and can start over, so a failed Save can be
// retried with the same data.
type RewindReader interface {
	io.Reader

	// Rewind restarts the reader at the first byte of the record.
	Rewind() error

	// Length returns the size of the record.
	Length() int64

	// Hash returns the checksum requested by the backend's Hasher, or nil.
	Hash() []byte
}

// RecordReader is a RewindReader for an encoded record held in memory.
type RecordReader struct {
	rd   *bytes.Reader
	hash []byte
}

var _ RewindReader = &RecordReader{}

// NewRecordReader returns a reader for buf. If hasher is not nil the
// checksum of buf is computed up front.
func NewRecordReader(buf []byte, hasher hash.Hash) *RecordReader {
	var sum []byte
	if hasher != nil {
		_, _ = hasher.Write(buf)
		sum = hasher.Sum(nil)
	}
	return &RecordReader{rd: bytes.NewReader(buf), hash: sum}
}

func (r *RecordReader) Read(p []byte) (int, error) {
	return r.rd.Read(p)
}

// Rewind restarts the reader.
func (r *RecordReader) Rewind() error {
	_, err := r.rd.Seek(0, io.SeekStart)
	return err
}

// Length returns the size of the record.
func (r *RecordReader) Length() int64 {
	return r.rd.Size()
}

// Hash returns the checksum of the record, nil if none was requested.
func (r *RecordReader) Hash() []byte {
	return r.hash
}
