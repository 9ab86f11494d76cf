// Package fingerprint observes a deterministic state fingerprint of one
// sheet and compares it against a caller-declared expectation.
//
// A Fingerprint is cheap to compute: dimension metadata is always read, and
// cell content is read only over the checksum range. The checksum is a
// domain-separated SHA-256 over a row-major, type-tagged serialization:
//
//	uvarint(rows) uvarint(cols)
//	for each row:
//	    for each cell: tag uvarint(len(bytes)) bytes
//	    0x1E
//
// Tags are the sheet.Tag* constants. Strings and formulas are NFC
// normalized, numbers use the shortest round-trip decimal form. Formulas are
// hashed as written, never as computed values, so volatile functions such
// as NOW() do not perturb the checksum.
//
// Expected carries an explicit Opt per field: a None field is not checked.
// Compare stops at the first mismatching field, in the order title,
// checksumRange, rowCount, columnCount, checksum, firstRowValues.
package fingerprint
