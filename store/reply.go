package store

import "strings"

// go-redis returns simple strings and bulk strings as the same Go string.
// The kind is restored from the command so relays keep the store's framing.

// statusCommands answer with a simple string whenever they answer with a string
var statusCommands = map[string]bool{
	"AUTH":         true,
	"BGREWRITEAOF": true,
	"BGSAVE":       true,
	"CONFIG":       true,
	"FLUSHALL":     true,
	"FLUSHDB":      true,
	"HMSET":        true,
	"LSET":         true,
	"LTRIM":        true,
	"MIGRATE":      true,
	"MSET":         true,
	"PFMERGE":      true,
	"PING":         true,
	"PSETEX":       true,
	"READONLY":     true,
	"READWRITE":    true,
	"RENAME":       true,
	"RESET":        true,
	"RESTORE":      true,
	"SAVE":         true,
	"SELECT":       true,
	"SETEX":        true,
	"SWAPDB":       true,
	"TYPE":         true,
	"XGROUP":       true,
}

// bulkCommands answer with a bulk string whenever they answer with a string
var bulkCommands = map[string]bool{
	"CLIENT":       true,
	"DUMP":         true,
	"ECHO":         true,
	"GET":          true,
	"GETDEL":       true,
	"GETEX":        true,
	"GETRANGE":     true,
	"GETSET":       true,
	"HGET":         true,
	"HINCRBYFLOAT": true,
	"HRANDFIELD":   true,
	"INCRBYFLOAT":  true,
	"INFO":         true,
	"LCS":          true,
	"LINDEX":       true,
	"LMOVE":        true,
	"LPOP":         true,
	"OBJECT":       true,
	"RANDOMKEY":    true,
	"RPOP":         true,
	"RPOPLPUSH":    true,
	"SCRIPT":       true,
	"SPOP":         true,
	"SRANDMEMBER":  true,
	"SUBSTR":       true,
	"XADD":         true,
	"ZINCRBY":      true,
	"ZSCORE":       true,
}

// fallbackStatus covers commands in neither table, such as module commands
var fallbackStatus = map[string]bool{
	"OK":     true,
	"QUEUED": true,
	"PONG":   true,
}

// tagStatus turns a top-level string reply into a StatusReply when the store
// sent it as a simple string
func tagStatus(args []string, reply interface{}) interface{} {
	s, ok := reply.(string)
	if !ok || len(args) == 0 {
		return reply
	}

	name := strings.ToUpper(args[0])
	switch {
	case name == "SET":
		if setReturnsOld(args) {
			return s
		}
		return StatusReply(s)
	case statusCommands[name]:
		return StatusReply(s)
	case bulkCommands[name]:
		return s
	case fallbackStatus[s]:
		return StatusReply(s)
	}
	return s
}

// setReturnsOld reports whether SET carries the GET option, which makes the
// reply the previous value
func setReturnsOld(args []string) bool {
	if len(args) < 4 {
		return false
	}
	for _, a := range args[3:] {
		if strings.EqualFold(a, "GET") {
			return true
		}
	}
	return false
}
