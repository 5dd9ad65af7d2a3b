package entity

// PositionLevel is an ordered seniority tier
type PositionLevel string

const (
	PositionStaff     PositionLevel = "STAFF"
	PositionSenior    PositionLevel = "SENIOR"
	PositionLead      PositionLevel = "LEAD"
	PositionManager   PositionLevel = "MANAGER"
	PositionDirector  PositionLevel = "DIRECTOR"
	PositionExecutive PositionLevel = "EXECUTIVE"
)

// positionRank orders tiers; unknown levels rank below STAFF
var positionRank = map[PositionLevel]int{
	PositionStaff:     1,
	PositionSenior:    2,
	PositionLead:      3,
	PositionManager:   4,
	PositionDirector:  5,
	PositionExecutive: 6,
}

// PositionLevels lists every tier from lowest to highest
func PositionLevels() []PositionLevel {
	return []PositionLevel{
		PositionStaff,
		PositionSenior,
		PositionLead,
		PositionManager,
		PositionDirector,
		PositionExecutive,
	}
}

// Rank returns the ordinal of the tier (0 when unknown)
func (p PositionLevel) Rank() int {
	return positionRank[p]
}

// IsValid reports whether p is a known tier
func (p PositionLevel) IsValid() bool {
	return positionRank[p] > 0
}

// IsManagement returns true for MANAGER and every tier above it
func (p PositionLevel) IsManagement() bool {
	return p.Rank() >= PositionManager.Rank()
}

// UserSegment classifies how often a requester travels
type UserSegment string

const (
	SegmentFrequentTraveler   UserSegment = "FREQUENT_TRAVELER"
	SegmentOccasionalTraveler UserSegment = "OCCASIONAL_TRAVELER"
)

// UserSegments lists every known segment
func UserSegments() []UserSegment {
	return []UserSegment{SegmentFrequentTraveler, SegmentOccasionalTraveler}
}

// IsFrequent reports whether the segment marks a daily/frequent traveler
func (s UserSegment) IsFrequent() bool {
	return s == SegmentFrequentTraveler
}

// IsValid reports whether s is a known segment
func (s UserSegment) IsValid() bool {
	return s == SegmentFrequentTraveler || s == SegmentOccasionalTraveler
}

// Requester holds the attributes the approval resolver consumes
type Requester struct {
	ID            string        `json:"id"`
	PositionLevel PositionLevel `json:"position_level"`
	UserSegment   UserSegment   `json:"user_segment"`
	ManagerID     string        `json:"manager_id,omitempty"`
}

// HasManager reports whether an approver can be routed to
func (r *Requester) HasManager() bool {
	return r.ManagerID != ""
}
