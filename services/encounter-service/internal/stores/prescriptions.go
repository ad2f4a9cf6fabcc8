package stores

import (
	"context"
	"net/http"
	"net/url"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
)

type PrescriptionClient struct {
	rest *restClient
}

func NewPrescriptionClient(cfg ClientConfig) (*PrescriptionClient, error) {
	rest, err := newRESTClient(cfg)
	if err != nil {
		return nil, err
	}
	return &PrescriptionClient{rest: rest}, nil
}

func (c *PrescriptionClient) Create(ctx context.Context, draft model.Prescription) (model.Prescription, error) {
	const op = "prescriptions.create"
	var out model.Prescription
	ok, err := c.rest.do(ctx, op, http.MethodPost, "/prescriptions", draft, &out)
	if err != nil {
		return model.Prescription{}, err
	}
	if !ok || out.PrescriptionID == "" {
		return model.Prescription{}, &clinicerr.Error{
			Kind:    clinicerr.KindServer,
			Op:      op,
			Message: "store accepted the prescription without returning its id",
			Err:     clinicerr.ErrWriteUnconfirmed,
		}
	}
	return out, nil
}

// GetByAppointment returns a NotFound error both for a 404 and for an empty 2xx body.
func (c *PrescriptionClient) GetByAppointment(ctx context.Context, appointmentID string) (model.Prescription, error) {
	const op = "prescriptions.get_by_appointment"
	var out model.Prescription
	ok, err := c.rest.do(ctx, op, http.MethodGet, "/prescriptions/appointment/"+url.PathEscape(appointmentID), nil, &out)
	if err != nil {
		return model.Prescription{}, err
	}
	if !ok || out.PrescriptionID == "" {
		return model.Prescription{}, &clinicerr.Error{
			Kind:       clinicerr.KindNotFound,
			Op:         op,
			StatusCode: http.StatusNotFound,
			Message:    "no prescription for appointment " + appointmentID,
		}
	}
	return out, nil
}

func (c *PrescriptionClient) Update(ctx context.Context, p model.Prescription) (model.Prescription, error) {
	const op = "prescriptions.update"
	var out model.Prescription
	ok, err := c.rest.do(ctx, op, http.MethodPut, "/prescriptions/"+url.PathEscape(p.PrescriptionID), p, &out)
	if err != nil {
		return model.Prescription{}, err
	}
	if !ok {
		return p, nil
	}
	return out, nil
}
