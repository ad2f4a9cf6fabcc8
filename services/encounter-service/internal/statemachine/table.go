package statemachine

import (
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
)

type Event string

const (
	EventConfirm  Event = "confirm"
	EventCancel   Event = "cancel"
	EventComplete Event = "complete"
)

type edge struct {
	from  model.Status
	event Event
}

var transitions = map[edge]model.Status{
	{model.StatusPending, EventConfirm}:    model.StatusConfirmed,
	{model.StatusPending, EventCancel}:     model.StatusCancelled,
	{model.StatusConfirmed, EventCancel}:   model.StatusCancelled,
	{model.StatusConfirmed, EventComplete}: model.StatusCompleted,
}

// Next returns the status reached by applying event in status from. Every pair missing from the
// table is an invalid_transition error.
func Next(from model.Status, event Event) (model.Status, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return "", clinicerr.Transition("appointments."+string(event), string(from), string(event))
	}
	return to, nil
}
