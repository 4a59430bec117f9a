package consts

import "errors"

var (
	ErrMailboxNotFound  = errors.New("mailbox not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrInternalError    = errors.New("internal error")
	ErrNotPermitted     = errors.New("operation not permitted")
	ErrMalformedMessage = errors.New("malformed message")

	// Authentication failures that the session layer maps to canned
	// response lines.
	ErrAuthFailed = errors.New("authentication failed")
	ErrUserBanned = errors.New("user temporarily banned")
)
