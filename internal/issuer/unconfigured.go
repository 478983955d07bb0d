package issuer

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = errors.New("issuer: base url not configured")

// Unconfigured stands in for the issuer when none is configured. Every
// issuance fails, so approved requests are dead-lettered instead of being
// dropped and can be requeued once the issuer is set up.
type Unconfigured struct{}

// Issue always fails with ErrNotConfigured.
func (Unconfigured) Issue(context.Context, IssueRequest) (Issued, error) {
	return Issued{}, ErrNotConfigured
}

// FindByRequest never finds anything.
func (Unconfigured) FindByRequest(context.Context, int64) (Issued, bool, error) {
	return Issued{}, false, nil
}
