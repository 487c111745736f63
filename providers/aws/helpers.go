package aws

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/aws/smithy-go"
)

const instanceWaitTimeout = 5 * time.Minute

// priorID pulls the "id" field out of a prior state payload, if any.
func priorID(prior json.RawMessage) string {
	if len(prior) == 0 {
		return ""
	}
	var s struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(prior, &s); err != nil {
		return ""
	}
	return s.ID
}

// isNotFound reports whether err means the remote object is already gone.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if strings.Contains(code, "NotFound") || strings.Contains(code, "NoSuch") ||
			strings.HasSuffix(code, ".Malformed") || code == "ResourceNotFoundException" {
			return true
		}
	}
	return false
}
