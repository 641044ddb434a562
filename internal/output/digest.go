package output

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"
)

const (
	cellSep = '\x1f'
	rowSep  = '\x1e'
)

// digest hashes one sheet's header and rows in a canonical form that does not
// depend on the container (CSV quoting, zip layout) the rows end up in.
//
// Canonicalization rules:
//   - Cells are joined with 0x1f, rows terminated with 0x1e.
//   - nil is a single NUL byte so blank differs from empty string.
//   - Each value is prefixed with a one-letter kind tag, so "1" and 1 differ.
type digest struct {
	h hash.Hash
	b strings.Builder
}

func newDigest() *digest { return &digest{h: sha256.New()} }

func (d *digest) row(cells []any) {
	d.b.Reset()
	for i, v := range cells {
		if i > 0 {
			d.b.WriteByte(cellSep)
		}
		appendCanonicalValue(&d.b, v)
	}
	d.b.WriteByte(rowSep)
	_, _ = d.h.Write([]byte(d.b.String()))
}

func (d *digest) sum() []byte { return d.h.Sum(nil) }

// combineDigests hashes named sheet digests in sheet order.
func combineDigests(names []string, sums [][]byte) string {
	h := sha256.New()
	for i, n := range names {
		_, _ = h.Write([]byte(n))
		_, _ = h.Write([]byte{cellSep})
		_, _ = h.Write(sums[i])
		_, _ = h.Write([]byte{rowSep})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')
	case string:
		b.WriteString("s:")
		b.WriteString(t)
	case bool:
		if t {
			b.WriteString("b:true")
		} else {
			b.WriteString("b:false")
		}
	case int:
		b.WriteString("i:")
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		b.WriteString("t:")
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
	default:
		b.WriteString("?:")
		b.WriteString(strings.TrimSpace(cellString(v)))
	}
}
