package routing

import (
	"time"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

// RecordFromCall builds the archive record of an ended call
func RecordFromCall(call *types.Call) types.CallRecord {
	record := types.CallRecord{
		DateKey:   call.CreatedAt.UTC().Format("2006-01-02"),
		CallID:    call.CallID,
		Direction: string(call.Direction),
		From:      call.From,
		To:        call.To,
		HandledBy: call.HandledBy,
		CreatedAt: call.CreatedAt.UTC().Format(time.RFC3339),
		EndReason: call.EndReason,
		Revisions: call.Revision,
	}
	if n := len(call.HandledBy); n > 0 {
		record.AgentID = call.HandledBy[n-1]
	}

	end := call.LastTransition
	if call.EndedAt != nil {
		end = *call.EndedAt
		record.EndedAt = end.UTC().Format(time.RFC3339)
	}

	if call.AnsweredAt != nil {
		record.AnsweredAt = call.AnsweredAt.UTC().Format(time.RFC3339)
		record.WaitTime = call.AnsweredAt.Sub(call.CreatedAt).Seconds()
		record.TalkTime = end.Sub(*call.AnsweredAt).Seconds()
	} else {
		record.WaitTime = end.Sub(call.CreatedAt).Seconds()
		record.Abandoned = call.Direction == types.DirectionInbound
	}
	return record
}
