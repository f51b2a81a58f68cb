package common

// KeyType classifies the structure of a stored entry. The numeric values
// follow the backing store's native key type ordering.
type KeyType uint8

const (
	KeyTypeEmpty  KeyType = 0
	KeyTypeString KeyType = 1
	KeyTypeList   KeyType = 2
	KeyTypeHash   KeyType = 3
	KeyTypeSet    KeyType = 4
	KeyTypeZSet   KeyType = 5
	KeyTypeModule KeyType = 6
	KeyTypeStream KeyType = 7
)

var keyTypeNames = map[KeyType]string{
	KeyTypeEmpty:  "EMPTY",
	KeyTypeString: "STRING",
	KeyTypeList:   "LIST",
	KeyTypeHash:   "HASH",
	KeyTypeSet:    "SET",
	KeyTypeZSet:   "ZSET",
	KeyTypeModule: "MODULE",
	KeyTypeStream: "STREAM",
}

// keyTypeByName is the inverse of keyTypeNames. EMPTY is not declarable.
var keyTypeByName = map[string]KeyType{
	"STRING": KeyTypeString,
	"LIST":   KeyTypeList,
	"HASH":   KeyTypeHash,
	"SET":    KeyTypeSet,
	"ZSET":   KeyTypeZSet,
	"MODULE": KeyTypeModule,
	"STREAM": KeyTypeStream,
}

// DispatchKeyTypes lists the key types that mutating commands are routed for.
var DispatchKeyTypes = []KeyType{KeyTypeString, KeyTypeHash}

func (k KeyType) String() string {
	if name, ok := keyTypeNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// HasFields reports whether entries of this type carry named sub-fields.
func (k KeyType) HasFields() bool {
	return k == KeyTypeHash
}

// Dispatchable reports whether any mutating command is routed for this type.
func (k KeyType) Dispatchable() bool {
	for _, t := range DispatchKeyTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ParseKeyType resolves a key type name. Names are case-sensitive.
func ParseKeyType(name string) (KeyType, bool) {
	k, ok := keyTypeByName[name]
	return k, ok
}
