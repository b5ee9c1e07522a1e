package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event records one terminal change-request outcome. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time
	Action        string // submitted, approved, denied, withdrawn, reverted
	Kind          string
	Status        string
	ObjectType    string
	ObjectID      *int64
	ObjectLabel   string
	RequesterID   uuid.UUID
	RequesterName string
	ModeratorID   *uuid.UUID
	ModeratorName string
	Comment       string
}
