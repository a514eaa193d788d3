package notification

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type role int

const (
	roleDoctor role = iota
	rolePatient
)

// message is one rendered notice for one recipient.
type message struct {
	Type    Type
	Title   string
	Text    string
	Subject string
	Body    string
	Meta    map[string]string
}

type messageData struct {
	Doctor  Person
	Patient Person
	Clinic  string
	Date    string
	Time    string
	OldDate string
	OldTime string
}

type messageTemplate struct {
	typ     Type
	action  string
	status  string
	title   *template.Template
	text    *template.Template
	subject *template.Template
	body    *template.Template
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

var templates = map[appointment.EventType][2]messageTemplate{
	appointment.EventBooked: {
		roleDoctor: {
			typ:     TypeBooked,
			action:  "Appointment Booked",
			status:  "Booked",
			title:   mustTemplate("title", `New Appointment: {{.Patient.FullName}}`),
			text:    mustTemplate("text", `Patient {{.Patient.FullName}} booked an appointment at {{.Clinic}} on {{.Date}} at {{.Time}}.`),
			subject: mustTemplate("subject", `Medicare: New Appointment - {{.Patient.FullName}}`),
			body: mustTemplate("body", `Dear Dr. {{.Doctor.LastName}},

A new appointment has been booked:

Patient: {{.Patient.FullName}}
Clinic: {{.Clinic}}
Date: {{.Date}}
Time: {{.Time}}
Status: Booked

Please log in to your dashboard to view details.

Best regards,
Medicare Team
`),
		},
		rolePatient: {
			typ:     TypeBooked,
			action:  "Appointment Booked",
			status:  "Booked",
			title:   mustTemplate("title", `Appointment Confirmed`),
			text:    mustTemplate("text", `Your appointment with Dr. {{.Doctor.FullName}} at {{.Clinic}} on {{.Date}} at {{.Time}} is confirmed.`),
			subject: mustTemplate("subject", `Medicare: Appointment Confirmed with Dr. {{.Doctor.LastName}}`),
			body: mustTemplate("body", `Dear {{.Patient.FirstName}},

Your appointment has been confirmed:

Doctor: Dr. {{.Doctor.FullName}}
Clinic: {{.Clinic}}
Date: {{.Date}}
Time: {{.Time}}
Status: Booked

Please arrive 10 minutes early.

Best regards,
Medicare Team
`),
		},
	},
	appointment.EventCancelled: {
		roleDoctor: {
			typ:     TypeCancelled,
			action:  "Appointment Cancelled",
			status:  "Cancelled",
			title:   mustTemplate("title", `Appointment Cancelled: {{.Patient.FullName}}`),
			text:    mustTemplate("text", `Patient {{.Patient.FullName}}'s appointment at {{.Clinic}} on {{.Date}} at {{.Time}} has been cancelled.`),
			subject: mustTemplate("subject", `Medicare: Appointment Cancelled - {{.Patient.FullName}}`),
			body: mustTemplate("body", `Dear Dr. {{.Doctor.LastName}},

An appointment has been cancelled:

Patient: {{.Patient.FullName}}
Clinic: {{.Clinic}}
Original Date: {{.Date}}
Original Time: {{.Time}}

The time slot is now available.

Best regards,
Medicare Team
`),
		},
		rolePatient: {
			typ:     TypeCancelled,
			action:  "Appointment Cancelled",
			status:  "Cancelled",
			title:   mustTemplate("title", `Appointment Cancelled`),
			text:    mustTemplate("text", `Your appointment with Dr. {{.Doctor.FullName}} at {{.Clinic}} has been cancelled.`),
			subject: mustTemplate("subject", `Medicare: Appointment Cancellation Confirmed`),
			body: mustTemplate("body", `Dear {{.Patient.FirstName}},

Your appointment has been cancelled:

Doctor: Dr. {{.Doctor.FullName}}
Clinic: {{.Clinic}}
Date: {{.Date}}
Time: {{.Time}}

You can book a new appointment anytime.

Best regards,
Medicare Team
`),
		},
	},
	appointment.EventRescheduled: {
		roleDoctor: {
			typ:     TypeRescheduled,
			action:  "Appointment Rescheduled",
			status:  "Rescheduled",
			title:   mustTemplate("title", `Appointment Rescheduled: {{.Patient.FullName}}`),
			text:    mustTemplate("text", `Patient {{.Patient.FullName}}'s appointment has been rescheduled from {{.OldDate}} {{.OldTime}} to {{.Date}} {{.Time}} at {{.Clinic}}.`),
			subject: mustTemplate("subject", `Medicare: Appointment Rescheduled - {{.Patient.FullName}}`),
			body: mustTemplate("body", `Dear Dr. {{.Doctor.LastName}},

An appointment has been rescheduled:

Patient: {{.Patient.FullName}}
Clinic: {{.Clinic}}

Previous Schedule:
Date: {{.OldDate}}
Time: {{.OldTime}}

New Schedule:
Date: {{.Date}}
Time: {{.Time}}

Best regards,
Medicare Team
`),
		},
		rolePatient: {
			typ:     TypeRescheduled,
			action:  "Appointment Rescheduled",
			status:  "Rescheduled",
			title:   mustTemplate("title", `Appointment Rescheduled`),
			text:    mustTemplate("text", `Your appointment with Dr. {{.Doctor.FullName}} has been rescheduled to {{.Date}} at {{.Time}} at {{.Clinic}}.`),
			subject: mustTemplate("subject", `Medicare: Appointment Rescheduled with Dr. {{.Doctor.LastName}}`),
			body: mustTemplate("body", `Dear {{.Patient.FirstName}},

Your appointment has been rescheduled:

Doctor: Dr. {{.Doctor.FullName}}
Clinic: {{.Clinic}}

Previous Schedule:
Date: {{.OldDate}}
Time: {{.OldTime}}

New Schedule:
Date: {{.Date}}
Time: {{.Time}}

Please mark your calendar accordingly.

Best regards,
Medicare Team
`),
		},
	},
}

// compose renders the doctor and patient messages for ev. Times are shown in loc.
func compose(ev appointment.LifecycleEvent, p *Parties, loc *time.Location, now time.Time) ([2]message, error) {
	var out [2]message
	tpls, ok := templates[ev.Type]
	if !ok {
		return out, fmt.Errorf("no message templates for event %q", ev.Type)
	}

	at := ev.NewTime.In(loc)
	data := messageData{
		Doctor:  p.Doctor,
		Patient: p.Patient,
		Clinic:  p.ClinicName,
		Date:    at.Format(time.DateOnly),
		Time:    at.Format("15:04"),
	}
	if ev.OldTime != nil {
		old := ev.OldTime.In(loc)
		data.OldDate = old.Format(time.DateOnly)
		data.OldTime = old.Format("15:04")
	}

	withName := [2]string{
		roleDoctor:  p.Patient.FullName(),
		rolePatient: "Dr. " + p.Doctor.FullName(),
	}

	for r, tpl := range tpls {
		m := message{
			Type: tpl.typ,
			Meta: map[string]string{
				"type":        tpl.action,
				"withName":    withName[r],
				"clinic_name": p.ClinicName,
				"date":        data.Date,
				"time":        data.Time,
				"status":      tpl.status,
				"created_at":  now.Format(time.RFC3339),
			},
		}
		var err error
		if m.Title, err = render(tpl.title, data); err != nil {
			return out, err
		}
		if m.Text, err = render(tpl.text, data); err != nil {
			return out, err
		}
		if m.Subject, err = render(tpl.subject, data); err != nil {
			return out, err
		}
		if m.Body, err = render(tpl.body, data); err != nil {
			return out, err
		}
		out[r] = m
	}
	return out, nil
}

func render(t *template.Template, data messageData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}
