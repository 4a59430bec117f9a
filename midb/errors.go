package midb

import (
	"errors"
	"fmt"
)

// Transport-level failures. The session stays intact and the client
// may retry.
var (
	// ErrNoServer means no connection to the index service could be
	// established.
	ErrNoServer = errors.New("midb: no server connection")

	// ErrReadWrite means the connection broke mid-exchange.
	ErrReadWrite = errors.New("midb: communication failure")

	// ErrTooManyResults means the backend refused to return an
	// oversized result set.
	ErrTooManyResults = errors.New("midb: too many results")
)

// Well-known application error codes, shared with the session layer's
// response table.
const (
	CodeNoFolder  = 1925 // folder does not exist
	CodeNoMessage = 1923 // message file unavailable
)

// Error is an application-level rejection: the backend was reachable
// but refused the operation.
type Error struct {
	Code int
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("midb: %s (code %d)", e.Text, e.Code)
}

// AsError unwraps an application error, if err carries one.
func AsError(err error) (*Error, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// IsNoFolder reports whether err is the folder-not-found application
// error, which some commands turn into a TRYCREATE hint.
func IsNoFolder(err error) bool {
	me, ok := AsError(err)
	return ok && me.Code == CodeNoFolder
}

// IsTransport reports whether err is one of the transport-level
// failures, as opposed to an application rejection.
func IsTransport(err error) bool {
	return errors.Is(err, ErrNoServer) || errors.Is(err, ErrReadWrite)
}
