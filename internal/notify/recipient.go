package notify

import (
	json "github.com/goccy/go-json"
)

// userContext is the decrypted user blob shape the pipeline understands.
type userContext struct {
	VAProfileEmail string `json:"va_profile_email"`
}

// ResolveRecipient picks the failure-email address: the address the claimant
// wrote on the form wins, then the profile email from the decrypted user
// context. An empty return means no notification can be sent; the caller
// still records the operational failure metric.
func ResolveRecipient(formEmail string, decryptedContext []byte) string {
	if formEmail != "" {
		return formEmail
	}
	if len(decryptedContext) == 0 {
		return ""
	}
	var uc userContext
	if err := json.Unmarshal(decryptedContext, &uc); err != nil {
		return ""
	}
	return uc.VAProfileEmail
}
