package session

import "errors"

var (
	// ErrTokenInvalid means the session token is unknown or superseded by a
	// later join; the client must restart the join handshake.
	ErrTokenInvalid = errors.New("session token invalid")
)
