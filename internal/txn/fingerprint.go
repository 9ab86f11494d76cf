package txn

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
)

// RequestFingerprint hashes payload's RFC 8785 canonical JSON form.
// Map key order and number formatting never affect the result.
func RequestFingerprint(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("request fingerprint: marshal: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("request fingerprint: canonicalize: %w", err)
	}
	return fingerprint.HashWithDomain(fingerprint.DomainRequest, canonical), nil
}

// ReportHash hashes a serialized report for replay verification.
func ReportHash(report []byte) string {
	return fingerprint.HashWithDomain(fingerprint.DomainReport, report)
}
