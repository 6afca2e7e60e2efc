package model

// EventRecorder counts authentication events by outcome.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}
