package signaling

import "errors"

var errMissingType = errors.New("message has no type")
