package chat

import "errors"

// ErrBadSignature indicates a request that did not carry a valid Slack signature.
var ErrBadSignature = errors.New("invalid slack signature")
