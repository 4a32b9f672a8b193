package domain

import "time"

// Alert is a user-facing outcome produced by the core and presented by an outer layer.
type Alert struct {
	Severity Severity
	Title    string
	Detail   string
	Time     time.Time
}
