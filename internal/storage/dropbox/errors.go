package dropbox

import (
	stderr "errors"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/auth"

	"github.com/objectfs/cloudtable/pkg/errors"
)

// The SDK's endpoint errors are distinct types per route, but every one of
// them reports the API's error_summary, e.g. "path/not_found/..", from
// Error(). Classification therefore works on that summary. An HTTP 401 is the
// one case decoded into its own type, auth.AuthAPIError.
var (
	notFoundMarkers = []string{"not_found"}
	conflictMarkers = []string{"conflict"}
	authMarkers     = []string{
		"invalid_access_token",
		"expired_access_token",
		"missing_scope",
		"invalid_select_user",
		"invalid_account_type",
		"user_suspended",
		"invalid_grant",
	}
)

func hasMarker(summary string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(summary, m) {
			return true
		}
	}
	return false
}

// translateError maps a Dropbox SDK error onto a StoreError.
func translateError(err error, operation, path string) error {
	if err == nil {
		return nil
	}
	var se *errors.StoreError
	if stderr.As(err, &se) {
		return err
	}

	summary := err.Error()
	var authErr auth.AuthAPIError
	switch {
	case stderr.As(err, &authErr), hasMarker(summary, authMarkers):
		return errors.NewError(errors.ErrCodeAuthFailure, summary).
			WithComponent(backendName).
			WithOperation(operation).
			WithPath(path).
			WithCause(err)
	case hasMarker(summary, notFoundMarkers):
		return errors.NotFound(backendName, operation, path).WithCause(err)
	case hasMarker(summary, conflictMarkers):
		return errors.AlreadyExists(backendName, operation, path).WithCause(err)
	default:
		return errors.Wrap(err, backendName, operation, path)
	}
}
