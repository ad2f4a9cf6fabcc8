package stores

import (
	"context"
	"net/http"
	"net/url"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
)

type AppointmentClient struct {
	rest *restClient
}

func NewAppointmentClient(cfg ClientConfig) (*AppointmentClient, error) {
	rest, err := newRESTClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AppointmentClient{rest: rest}, nil
}

func (c *AppointmentClient) List(ctx context.Context) ([]model.Appointment, error) {
	var out []model.Appointment
	if _, err := c.rest.do(ctx, "appointments.list", http.MethodGet, "/appointments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AppointmentClient) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	appt.AppointmentID = ""
	appt.Status = ""
	return c.expectAppointment(ctx, "appointments.create", http.MethodPost, "/appointments/create", appt)
}

func (c *AppointmentClient) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	return c.expectAppointment(ctx, "appointments.confirm", http.MethodPut, "/appointments/"+url.PathEscape(id)+"/confirm", nil)
}

func (c *AppointmentClient) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	body := struct {
		Reason string `json:"reason"`
	}{Reason: reason}
	return c.expectAppointment(ctx, "appointments.cancel", http.MethodPut, "/appointments/cancel/"+url.PathEscape(id), body)
}

func (c *AppointmentClient) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return c.expectAppointment(ctx, "appointments.complete", http.MethodPut, "/appointments/"+url.PathEscape(id)+"/complete", nil)
}

func (c *AppointmentClient) CreateRevisit(ctx context.Context, originID string, req RevisitRequest) (model.Appointment, error) {
	return c.expectAppointment(ctx, "appointments.revisit", http.MethodPost, "/appointments/revisit/"+url.PathEscape(originID), req)
}

// expectAppointment tolerates stores that answer a mutation with an empty body: the caller gets
// a zero Appointment and applies the transition target itself.
func (c *AppointmentClient) expectAppointment(ctx context.Context, op, method, path string, in any) (model.Appointment, error) {
	var out model.Appointment
	if _, err := c.rest.do(ctx, op, method, path, in, &out); err != nil {
		return model.Appointment{}, err
	}
	if out.Status != "" && !out.Status.Valid() {
		return model.Appointment{}, &clinicerr.Error{
			Kind:    clinicerr.KindServer,
			Op:      op,
			Message: "unknown appointment status " + string(out.Status),
		}
	}
	return out, nil
}
