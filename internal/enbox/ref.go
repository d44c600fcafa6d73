package enbox

import "fmt"

// Ref points at one occurrence of a block inside a blob. Index is the
// position of the chunk in the source file; the same Hash may occur at
// several indexes.
type Ref struct {
	Hash  ID  `cbor:"1,keyasint" json:"hash"`
	Index int `cbor:"2,keyasint" json:"index"`
}

func (r Ref) String() string {
	return fmt.Sprintf("<Ref %v #%d>", r.Hash.Str(), r.Index)
}

// Refs is an ordered list of references.
type Refs []Ref

// Sorted reports whether the indexes of r are 0, 1, 2, ... in order.
func (r Refs) Sorted() bool {
	for i, ref := range r {
		if ref.Index != i {
			return false
		}
	}
	return true
}

// Occurrences counts how often each hash is referenced.
func (r Refs) Occurrences() map[ID]int {
	m := make(map[ID]int, len(r))
	for _, ref := range r {
		m[ref.Hash]++
	}
	return m
}
