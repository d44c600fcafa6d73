package enbox_test

import (
	"encoding/json"
	"testing"

	"github.com/enbox/enbox/internal/enbox"
	rtest "github.com/enbox/enbox/internal/test"
)

// sha512("foobar")
const foobarHash = "0a50261ebd1a390fed2bf326f2673c145582a6342d523204973d0219337f81616a8069b012587cf5635f6925f1b56c360230c19b273500ee013e030601bf2425"

func TestID(t *testing.T) {
	id := enbox.Hash([]byte("foobar"))
	rtest.Equals(t, foobarHash, id.String())

	parsed, err := enbox.ParseID(foobarHash)
	rtest.OK(t, err)
	rtest.Equals(t, id, parsed)
	rtest.Equals(t, "0a50261e", id.Str())

	buf, err := json.Marshal(id)
	rtest.OK(t, err)

	var id2 enbox.ID
	rtest.OK(t, json.Unmarshal(buf, &id2))
	rtest.Equals(t, id, id2)
}

func TestIDInvalid(t *testing.T) {
	_, err := enbox.ParseID("abcd")
	rtest.Assert(t, err != nil, "short ID accepted")

	_, err = enbox.ParseID("zz")
	rtest.Assert(t, err != nil, "non-hex ID accepted")

	var id enbox.ID
	rtest.Assert(t, id.IsNull(), "zero ID is not null")
	rtest.Equals(t, "[null]", id.Str())
	rtest.Assert(t, json.Unmarshal([]byte(`"abcd"`), &id) != nil, "short JSON ID accepted")
}

func TestIDLess(t *testing.T) {
	var a, b enbox.ID
	a[3] = 1
	b[3] = 2
	rtest.Assert(t, a.Less(b), "a should be less than b")
	rtest.Assert(t, !b.Less(a), "b should not be less than a")
	rtest.Assert(t, !a.Less(a), "a should not be less than itself")
}

func TestRefs(t *testing.T) {
	x := enbox.Hash([]byte("x"))
	y := enbox.Hash([]byte("y"))
	refs := enbox.Refs{{Hash: x, Index: 0}, {Hash: y, Index: 1}, {Hash: x, Index: 2}}

	rtest.Assert(t, refs.Sorted(), "refs should be sorted")
	rtest.Equals(t, map[enbox.ID]int{x: 2, y: 1}, refs.Occurrences())

	refs[1].Index = 5
	rtest.Assert(t, !refs.Sorted(), "refs with a gap reported as sorted")
}
