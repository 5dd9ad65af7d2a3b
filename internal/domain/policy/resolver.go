// Package policy decides which approval pathway a trip booking requires.
package policy

import "github.com/garyjia/trip-approval/internal/domain/entity"

// ResolveApprovalType returns the approval pathway for requester on a trip.
// Rules are evaluated in priority order:
//  1. management tier or above skips approval entirely
//  2. frequent travelers on business trips only CC their manager
//  3. everyone else needs an explicit manager decision
func ResolveApprovalType(requester entity.Requester, isBusinessTrip bool) entity.ApprovalType {
	if requester.PositionLevel.IsManagement() {
		return entity.ApprovalTypeAutoApproved
	}
	if requester.UserSegment.IsFrequent() && isBusinessTrip {
		return entity.ApprovalTypeCcOnly
	}
	return entity.ApprovalTypeManagerApproval
}
