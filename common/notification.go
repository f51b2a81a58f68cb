package common

// Notification is one aggregator result headed for the notification channel.
// This type is shared between the aggregator and publisher packages.
type Notification struct {
	Channel  string
	Function string
	KeyType  KeyType
	Key      string
	Body     string
}
