// Package stage assigns identity to extracted candidates and persists them
// as reviewable pending actions, protected against duplicate delivery.
package stage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
)

// signedPayload is the canonical wire form covered by the signature. Struct
// field order is fixed and map keys are sorted by encoding/json, so the same
// payload always serializes to the same bytes.
type signedPayload struct {
	Source  model.Source      `json:"source"`
	Action  *model.Action     `json:"action"`
	RawText string            `json:"raw_text"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// CanonicalPayload returns the canonical serialization of the fields covered
// by a pending action's signature.
func CanonicalPayload(source model.Source, action *model.Action, rawText string, meta map[string]string) ([]byte, error) {
	body, err := json.Marshal(signedPayload{
		Source:  source,
		Action:  action,
		RawText: rawText,
		Meta:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return body, nil
}

// Sign computes HMAC-SHA256 over the body as a hex string.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the body's signature and compares it against the
// received one in constant time. A mismatch is an authentication failure;
// nothing downstream of it may be staged.
func Verify(secret string, body []byte, signature string) error {
	received, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", common.ErrSignatureMismatch)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(received, mac.Sum(nil)) {
		return common.ErrSignatureMismatch
	}
	return nil
}
