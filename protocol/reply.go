package protocol

import (
	"fmt"
	"strconv"

	"github.com/maxpert/kvstream/store"
	"github.com/tidwall/redcon"
)

// writeReply encodes a store or dispatcher reply in RESP2. Plain strings are
// bulk; the store tags simple strings as StatusReply.
func writeReply(conn redcon.Conn, reply interface{}) {
	switch v := reply.(type) {
	case nil:
		conn.WriteNull()
	case store.StatusReply:
		conn.WriteString(string(v))
	case store.ErrorReply:
		conn.WriteError(sanitize(string(v)))
	case error:
		conn.WriteError(ErrorMessage(v))
	case string:
		conn.WriteBulkString(v)
	case []byte:
		conn.WriteBulk(v)
	case int64:
		conn.WriteInt64(v)
	case int:
		conn.WriteInt(v)
	case bool:
		if v {
			conn.WriteInt(1)
		} else {
			conn.WriteInt(0)
		}
	case float64:
		conn.WriteBulkString(strconv.FormatFloat(v, 'f', -1, 64))
	case []string:
		conn.WriteArray(len(v))
		for _, s := range v {
			conn.WriteBulkString(s)
		}
	case []interface{}:
		conn.WriteArray(len(v))
		for _, item := range v {
			writeReply(conn, item)
		}
	default:
		conn.WriteBulkString(fmt.Sprint(v))
	}
}
