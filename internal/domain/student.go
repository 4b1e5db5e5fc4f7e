package domain

import "time"

// Student is the slim recipient view used by the broadcast and per-student
// report producers. Full student administration lives outside this service.
type Student struct {
	ID        int64
	Name      string
	Email     string
	Branch    string
	CreatedAt time.Time
}

// BroadcastTemplate stores the subject and message of the most recent
// broadcast; the nightly broadcast job re-sends the latest one.
type BroadcastTemplate struct {
	ID        int64
	Subject   string
	Message   string
	CreatedAt time.Time
}
