package store

// EventTag links a tag to an event.
type EventTag struct {
	EventID   int32 `json:"eventId"`
	TagID     int32 `json:"tagId"`
	CreatedTs int64 `json:"createdTs"`
}

type FindEventTag struct {
	EventID *int32
	TagID   *int32
}

// ParticipantRole is the role of a participant in an event.
type ParticipantRole string

const (
	RoleHost  ParticipantRole = "host"
	RoleGuest ParticipantRole = "guest"
)

type EventParticipant struct {
	EventID   int32           `json:"eventId"`
	UserID    int32           `json:"userId"`
	Role      ParticipantRole `json:"role"`
	CreatedTs int64           `json:"createdTs"`
}

type FindEventParticipant struct {
	EventID *int32
	UserID  *int32
}

type DeleteEventParticipant struct {
	EventID int32
	UserID  int32
}

// EventVerifier records that a user confirmed an event on site.
type EventVerifier struct {
	EventID   int32 `json:"eventId"`
	UserID    int32 `json:"userId"`
	CreatedTs int64 `json:"createdTs"`
}

type FindEventVerifier struct {
	EventID *int32
	UserID  *int32
}
