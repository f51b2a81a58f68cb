package protocol

import (
	"context"
	"errors"
	"strings"

	"github.com/maxpert/kvstream/dispatcher"
	"github.com/maxpert/kvstream/store"
)

// ErrorMessage renders err as a RESP error line (without the leading '-').
// Store error replies pass through verbatim so clients see the backing
// server's own prefixes such as WRONGTYPE.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var reply store.ErrorReply
	if errors.As(err, &reply) {
		return sanitize(string(reply))
	}

	var syntax *dispatcher.SyntaxError
	switch {
	case errors.As(err, &syntax):
		return "ERR " + sanitize(syntax.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return "ERR command timed out"
	}

	return "ERR " + sanitize(err.Error())
}

// sanitize keeps an error on one RESP line
func sanitize(msg string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
}
