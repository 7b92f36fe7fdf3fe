package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ReceiptPathParams identify one archived order receipt.
type ReceiptPathParams struct {
	Prefix      string
	GuardKey    string
	SubmittedAt time.Time
}

// BuildReceiptPath returns <prefix>/receipts/<yyyy>/<mm>/<guardKey>.json.
func BuildReceiptPath(params ReceiptPathParams) (string, error) {
	key, err := validateSegment("guardKey", params.GuardKey)
	if err != nil {
		return "", err
	}
	if params.SubmittedAt.IsZero() {
		return "", fmt.Errorf("storage: submittedAt is required")
	}
	prefix := strings.Trim(strings.TrimSpace(params.Prefix), "/")
	if strings.Contains(prefix, "..") {
		return "", fmt.Errorf("storage: prefix contains invalid traversal sequence")
	}
	at := params.SubmittedAt.UTC()
	return path.Join(prefix, "receipts", at.Format("2006"), at.Format("01"), key+".json"), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
