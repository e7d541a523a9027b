package domain

// BanEntry is one line of the server's banlist output, already classified.
// Entries are request-scoped: parsed from RCON text on demand and never
// persisted.
type BanEntry struct {
	Identifier string `json:"identifier"`
	BannedBy   string `json:"banned_by"`
	Message    string `json:"message"`
}

// BanList groups ban entries by identifier kind. DeclaredCount is the
// count the server claimed; it can disagree with the entry total when the
// response was truncated.
type BanList struct {
	DeclaredCount int        `json:"declared_count"`
	Users         []BanEntry `json:"users"`
	UUIDs         []BanEntry `json:"uuids"`
	IPs           []BanEntry `json:"ips"`
}

// Total returns the number of parsed entries across all buckets.
func (b *BanList) Total() int {
	return len(b.Users) + len(b.UUIDs) + len(b.IPs)
}
