package model

import (
	"fmt"
	"time"
)

// State of a scout request. Queued and Dispatched are the only live states;
// the rest are terminal.
type State int

const (
	StateQueued State = iota
	StateDispatched
	StateResolved
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateDispatched:
		return "dispatched"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Source lists a request can originate from.
const (
	SourceCellList = "celllist"
	SourceIVList   = "ivlist"
	SourceRarity   = "rarity"
)

// Tier boundaries for the priority encoding. VIP tiers are 0-999 with
// celllist entries in the low sub-range and ivlist entries offset above
// them; rarity tiers start at RarityTierBase + rank, with the bare base
// meaning unranked-but-eligible.
const (
	IVListSubrankBase = 500
	RarityTierBase    = 1000
)

// Priority orders scout requests. Lower sorts first.
type Priority struct {
	Tier    int `json:"tier"`
	Subrank int `json:"subrank"`
}

// Less compares two priorities with an enqueue-time tiebreak.
func (p Priority) Less(other Priority, at, otherAt time.Time) bool {
	if p.Tier != other.Tier {
		return p.Tier < other.Tier
	}
	if p.Subrank != other.Subrank {
		return p.Subrank < other.Subrank
	}
	return at.Before(otherAt)
}

// VIPCellPriority encodes a celllist position.
func VIPCellPriority(index int) Priority {
	return Priority{Tier: 0, Subrank: index}
}

// VIPSpawnPriority encodes an ivlist position, offset above the celllist
// sub-range so cell matches outrank spawn matches at comparable positions.
func VIPSpawnPriority(index int) Priority {
	return Priority{Tier: 0, Subrank: IVListSubrankBase + index}
}

// RarityPriority encodes a rarity rank. Rank 0 means unranked-but-eligible.
func RarityPriority(rank int) Priority {
	return Priority{Tier: RarityTierBase + rank, Subrank: 0}
}

// ScoutRequest is a pending or in-flight stat-scout. Owned by the priority
// queue while Queued; ownership moves to the dispatch engine's outstanding
// set on dispatch; destroyed on any terminal transition.
type ScoutRequest struct {
	Identity  string
	SpeciesID int
	Form      *int
	Area      string
	SeenType  string
	Source    string

	// Points to scout: one coordinate, or the cell pattern for nearby_cell.
	Points []Point

	// CellToken is set for nearby_cell requests and used for cell-match
	// resolution.
	CellToken string

	Priority   Priority
	EnqueuedAt time.Time
	DespawnAt  time.Time

	State        State
	DispatchedAt time.Time
	Deadline     time.Time
}

// SpeciesKey returns the exact matcher key for the request's species.
func (r *ScoutRequest) SpeciesKey() string {
	return SpeciesKey(r.SpeciesID, r.Form)
}

// CellIdentity builds the composite identity for a nearby_cell request.
func CellIdentity(token string, species int, form *int) string {
	return fmt.Sprintf("cell:%s:%s", token, SpeciesKey(species, form))
}
