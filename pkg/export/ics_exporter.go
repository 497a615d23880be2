package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Event is one calendar entry.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Calendar is a named collection of events.
type Calendar struct {
	Name        string
	Description string
	Events      []Event
}

// ICSExporter renders calendars as iCalendar (RFC 5545) feeds.
type ICSExporter struct {
	productID string
	now       func() time.Time
}

// NewICSExporter constructs an iCalendar exporter. now stamps DTSTAMP and
// defaults to time.Now.
func NewICSExporter(productID string, now func() time.Time) *ICSExporter {
	if productID == "" {
		productID = "-//postgraduate-schedules//timetable//EN"
	}
	if now == nil {
		now = time.Now
	}
	return &ICSExporter{productID: productID, now: now}
}

// Render serialises the calendar. Every event needs a UID and an end after
// its start.
func (e *ICSExporter) Render(cal Calendar) ([]byte, error) {
	if len(cal.Events) == 0 {
		return nil, fmt.Errorf("ics requires at least one event")
	}
	out := ics.NewCalendar()
	out.SetMethod(ics.MethodPublish)
	out.SetProductId(e.productID)
	if cal.Name != "" {
		out.SetXWRCalName(cal.Name)
	}
	if cal.Description != "" {
		out.SetXWRCalDesc(cal.Description)
	}

	stamp := e.now().UTC()
	for _, evt := range cal.Events {
		if evt.UID == "" {
			return nil, fmt.Errorf("ics event %q has no uid", evt.Summary)
		}
		if !evt.End.After(evt.Start) {
			return nil, fmt.Errorf("ics event %s ends before it starts", evt.UID)
		}
		event := out.AddEvent(evt.UID)
		event.SetDtStampTime(stamp)
		event.SetStartAt(evt.Start)
		event.SetEndAt(evt.End)
		event.SetSummary(evt.Summary)
		if evt.Description != "" {
			event.SetDescription(evt.Description)
		}
		if evt.Location != "" {
			event.SetLocation(evt.Location)
		}
	}
	return []byte(out.Serialize()), nil
}
