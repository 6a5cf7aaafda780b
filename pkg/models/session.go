package models

import "time"

// SessionRecord is one authenticated client connection instance. Several
// records may share one operator email (multiple tabs or devices).
type SessionRecord struct {
	ID            string    `json:"session_id"`
	OperatorEmail string    `json:"operator_email"`
	LastActivity  time.Time `json:"last_activity"`
}

// SessionUpdate is the payload of a sessionUpdate stream event, notifying
// sibling sessions that a session appeared or went away.
type SessionUpdate struct {
	SessionID     string `json:"session_id"`
	OperatorEmail string `json:"operator_email"`
	Removed       bool   `json:"removed"`
}
