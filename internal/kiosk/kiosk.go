// Package kiosk models the self-service check-in screen as a finite state
// machine. A Flow is the persisted state of one kiosk session.
package kiosk

import (
	"time"

	"github.com/diagnosis/visitor-management/internal/domain"
)

type State string

const (
	StateWelcome      State = "welcome"
	StateQRScan       State = "qr_scan"
	StateForm         State = "form"
	StatePhoto        State = "photo"
	StateConfirmation State = "confirmation"
)

type Event string

const (
	EventScanQR        Event = "scan_qr"
	EventEnterManually Event = "enter_manually"
	EventBack          Event = "back"
	EventQRMatched     Event = "qr_matched"
	EventSubmitForm    Event = "submit_form"
	EventPhotoCaptured Event = "photo_captured"
	EventFinish        Event = "finish"
)

type edge struct {
	from  State
	event Event
}

var transitions = map[edge]State{
	{StateWelcome, EventScanQR}:        StateQRScan,
	{StateWelcome, EventEnterManually}: StateForm,
	{StateQRScan, EventBack}:           StateWelcome,
	{StateQRScan, EventEnterManually}:  StateForm,
	{StateQRScan, EventQRMatched}:      StateConfirmation,
	{StateForm, EventBack}:             StateWelcome,
	{StateForm, EventSubmitForm}:       StatePhoto,
	{StatePhoto, EventBack}:            StateForm,
	{StatePhoto, EventPhotoCaptured}:   StateConfirmation,
	{StateConfirmation, EventFinish}:   StateWelcome,
}

// Next looks up the target state for event in from.
func Next(from State, event Event) (State, bool) {
	to, ok := transitions[edge{from, event}]
	return to, ok
}

// Allowed lists the events accepted in s, in a fixed order.
func Allowed(s State) []Event {
	var out []Event
	for _, e := range []Event{EventScanQR, EventEnterManually, EventBack, EventQRMatched, EventSubmitForm, EventPhotoCaptured, EventFinish} {
		if _, ok := transitions[edge{s, e}]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Confirmation is what the last screen shows.
type Confirmation struct {
	VisitID     string     `json:"visit_id"`
	VisitorName string     `json:"visitor_name"`
	HostName    string     `json:"host_name"`
	Location    string     `json:"location"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
}

type Flow struct {
	ID           string                   `json:"id"`
	State        State                    `json:"state"`
	Form         *domain.KioskFormRequest `json:"form,omitempty"`
	PhotoURL     string                   `json:"photo_url,omitempty"`
	Confirmation *Confirmation            `json:"confirmation,omitempty"`
	AllowedNext  []Event                  `json:"allowed_events"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

func NewFlow(id string, now time.Time) Flow {
	return Flow{
		ID:          id,
		State:       StateWelcome,
		AllowedNext: Allowed(StateWelcome),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Fire moves f along event. On error f is returned unchanged. Reaching
// welcome via finish clears all collected data; going back from the form
// keeps it so the visitor can resume.
func Fire(f Flow, event Event, now time.Time) (Flow, error) {
	to, ok := Next(f.State, event)
	if !ok {
		return f, &domain.TransitionError{From: string(f.State), Event: string(event)}
	}

	next := f
	next.State = to
	next.AllowedNext = Allowed(to)
	next.UpdatedAt = now
	if event == EventFinish {
		next.Form = nil
		next.PhotoURL = ""
		next.Confirmation = nil
	}
	return next, nil
}
