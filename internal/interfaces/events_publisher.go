package interfaces

// EventPublisher delivers post-commit domain events. Publication is advisory;
// the movement log is the source of truth.
type EventPublisher interface {
	Publish(topic string, event any) error
}
