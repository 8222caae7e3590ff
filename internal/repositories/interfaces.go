package repositories

// ===== SHARED FILTER STRUCTS =====

type StudentFilters struct {
	// Search matches name, email or cod (substring).
	Search string `json:"search"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type RoomFilters struct {
	// Search matches room name or cod (substring).
	Search string `json:"search"`
}

type RosterFilters struct {
	Search string `json:"search"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// RosterCounts carries the partition totals for a room roster page.
// Both counts are computed independently of pagination so they stay
// stable regardless of the current page size.
type RosterCounts struct {
	TotalLinked   int64 `json:"totalLinked"`
	TotalUnlinked int64 `json:"totalUnlinked"`
}
