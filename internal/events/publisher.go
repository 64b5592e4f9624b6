// Package events carries check and status notifications out of the check
// pipeline. Publishing is fire-and-forget: a subscriber that fails must
// never fail a check.
package events

import "log"

// Type is the kind of event being published.
type Type string

const (
	// StatusChanged fires when a check moves a service between statuses.
	StatusChanged Type = "status_changed"
	// CheckCompleted fires after every check, regardless of outcome.
	CheckCompleted Type = "check_completed"
)

// Publisher delivers an event to one kind of subscriber.
type Publisher interface {
	Publish(eventType Type, payload map[string]any) error
}

// Multi fans one event out to several publishers, logging failures and
// moving on.
type Multi []Publisher

func (m Multi) Publish(eventType Type, payload map[string]any) error {
	for _, p := range m {
		if err := p.Publish(eventType, payload); err != nil {
			log.Printf("[WARN] event publish failed type=%s: %v", eventType, err)
		}
	}
	return nil
}

// LogPublisher writes events to the process log. Used as the default
// subscriber when nothing else is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(eventType Type, payload map[string]any) error {
	log.Printf("event %s: name=%v status=%v", eventType, payload["name"], payload["status"])
	return nil
}
