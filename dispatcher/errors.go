package dispatcher

import (
	"fmt"

	"github.com/maxpert/kvstream/common"
)

// SyntaxError reports a STREAM request with the wrong shape
type SyntaxError struct {
	Usage string
}

func (e *SyntaxError) Error() string {
	return "wrong number of arguments, usage: " + e.Usage
}

// DispatchError reports an aggregator failure after the pass-through
// command already succeeded. The store's reply is still valid.
type DispatchError struct {
	KeyType  common.KeyType
	Key      string
	Function string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s key %q to %s: %v", e.KeyType, e.Key, e.Function, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
