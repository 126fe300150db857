// Package strava turns incoming webhook events into reward records.
package strava

// Event is the activity event Strava posts to the webhook endpoint.
type Event struct {
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
	AspectType string `json:"aspect_type"`
	OwnerID    int64  `json:"owner_id"`
}

// IsActivityCreation reports whether the event is a newly created
// activity. Everything else (updates, deletions, athlete events) is
// ignored.
func (e Event) IsActivityCreation() bool {
	return e.ObjectType == "activity" && e.AspectType == "create"
}

// Result is the webhook's answer body. Strava bans endpoints that
// answer with failure codes, so outcomes collapse into these two.
type Result string

const (
	EventReceived Result = "EVENT_RECEIVED"
	EventIgnored  Result = "EVENT_IGNORED"
)
