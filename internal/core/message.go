package core

import (
	"strconv"
	"strings"
)

// Tombstone is the fixed content written over a soft-deleted message.
const Tombstone = "This message has been deleted"

// filterMessageIDs drops client-side temporary identifiers and anything
// that does not parse as a persisted message ID.
func filterMessageIDs(raw []string) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		if strings.HasPrefix(s, "temp-") {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
