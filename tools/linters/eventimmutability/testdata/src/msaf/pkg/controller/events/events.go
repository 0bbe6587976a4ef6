package events

import "time"

// M3RequestFailedEvent mirrors the shape of a real event for analyzer tests.
type M3RequestFailedEvent struct {
	Hostname  string
	Status    int
	Attempts  int
	timestamp time.Time
}

func (e *M3RequestFailedEvent) EventType() string { return "m3.request.failed" }

func (e *M3RequestFailedEvent) touch() { e.timestamp = time.Now() }
