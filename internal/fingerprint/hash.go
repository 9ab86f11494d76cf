package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Domain prefixes for content hashes. The version suffix allows future
// algorithm migration without colliding with stored values.
const (
	DomainChecksum = "servalguard/checksum/v1"
	DomainRequest  = "servalguard/request/v1"
	DomainReport   = "servalguard/report/v1"
)

const rowSeparator = 0x1E

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Checksum hashes the rows x cols rectangle of g anchored at (0, 0).
// Cells missing from g are serialized as Empty, so a ragged grid and its
// padded form hash identically.
func Checksum(g sheet.Grid, rows, cols int) string {
	return HashWithDomain(DomainChecksum, Serialize(g, rows, cols))
}

// Serialize returns the byte sequence Checksum hashes.
func Serialize(g sheet.Grid, rows, cols int) []byte {
	buf := make([]byte, 0, 16+rows*cols*4)
	buf = binary.AppendUvarint(buf, uint64(rows))
	buf = binary.AppendUvarint(buf, uint64(cols))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := g.At(r, c)
			b := sheet.Canonical(v)
			buf = append(buf, sheet.TagOf(v))
			buf = binary.AppendUvarint(buf, uint64(len(b)))
			buf = append(buf, b...)
		}
		buf = append(buf, rowSeparator)
	}
	return buf
}
