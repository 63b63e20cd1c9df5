package realtime

import (
	"errors"
	"fmt"
)

// ErrAlreadyActive is returned when StartSession is called while a session
// is live. Expected outcome of double-invocation from eager UI code;
// returned, never panicked.
var ErrAlreadyActive = errors.New("a realtime session is already active")

// CredentialError is a rejection from the credential-issuance endpoint.
// Not retried: retrying with the same bad parameters is pointless. Detail
// carries the server-provided text verbatim for the status subscriber.
type CredentialError struct {
	StatusCode int
	Detail     string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential issuance failed (%d): %s", e.StatusCode, e.Detail)
}
