package a

import "msaf/pkg/controller/events"

func overwriteStatus(event *events.M3RequestFailedEvent) {
	event.Status = 0 // want `event field mutation detected`
}

func overwriteSeveral(event *events.M3RequestFailedEvent) {
	event.Hostname = "other" // want `event field mutation detected`
	event.Attempts++         // want `event field mutation detected`
}

func conditional(event *events.M3RequestFailedEvent, retry bool) {
	if retry {
		event.Attempts += 1 // want `event field mutation detected`
	}
}

func byValue(event events.M3RequestFailedEvent) {
	event.Status = 500 // want `event field mutation detected`
}

func read(event *events.M3RequestFailedEvent) (string, int) {
	return event.Hostname, event.Status
}

func buildLocally() *events.M3RequestFailedEvent {
	event := &events.M3RequestFailedEvent{}
	event.Hostname = "as1.example.com"
	event.Status = 503
	return event
}

type plain struct {
	Field string
}

func mutatePlain(p *plain) {
	p.Field = "ok"
}
