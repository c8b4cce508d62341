package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/clinicflow/clinicflow/core/appointment"
	"github.com/clinicflow/clinicflow/core/command"
	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/core/response"
	"github.com/clinicflow/clinicflow/pkg/realtime"
)

// maxBodyBytes bounds command request bodies.
const maxBodyBytes = 64 << 10

type appointmentSubmitter interface {
	Submit(ctx context.Context, cmd appointment.UpdateStatus) (string, error)
	SubmitCreate(ctx context.Context, cmd appointment.Create) (string, string, error)
}

type notificationFeed interface {
	Recent(ctx context.Context, userID string) ([]notification.Notification, error)
}

type statusRequest struct {
	Status appointment.Status `json:"status"`
	Role   appointment.Role   `json:"role"`
	Reason string             `json:"reason,omitempty"`
}

type submitted struct {
	AppointmentID string `json:"appointmentId"`
	TraceID       string `json:"traceId"`
}

// api exposes the synchronous entry points. The user id comes from the same
// edge-proxy header the websocket handler trusts.
type api struct {
	log   *slog.Logger
	appts appointmentSubmitter
	feed  notificationFeed
}

func (a *api) register(mux *http.ServeMux) {
	mux.Handle("POST /appointments", response.Handle(a.log, a.createAppointment))
	mux.Handle("POST /appointments/{id}/status", response.Handle(a.log, a.updateStatus))
	mux.Handle("GET /notifications", response.Handle(a.log, a.notifications))
}

func (a *api) createAppointment(r *http.Request) response.Response {
	userID, err := realtime.DefaultUserResolver(r)
	if err != nil {
		return response.Error(response.ErrUnauthorized.WithError(err))
	}

	var cmd appointment.Create
	if err := decode(r, &cmd); err != nil {
		return response.Error(err)
	}
	cmd.UserID = userID

	id, traceID, err := a.appts.SubmitCreate(r.Context(), cmd)
	if err != nil {
		return response.Error(submitError(err))
	}
	return response.JSONWithStatus(submitted{AppointmentID: id, TraceID: traceID}, http.StatusAccepted)
}

func (a *api) updateStatus(r *http.Request) response.Response {
	userID, err := realtime.DefaultUserResolver(r)
	if err != nil {
		return response.Error(response.ErrUnauthorized.WithError(err))
	}

	var req statusRequest
	if err := decode(r, &req); err != nil {
		return response.Error(err)
	}

	cmd := appointment.UpdateStatus{
		AppointmentID: r.PathValue("id"),
		Status:        req.Status,
		Role:          req.Role,
		UserID:        userID,
		Reason:        req.Reason,
	}
	traceID, err := a.appts.Submit(r.Context(), cmd)
	if err != nil {
		return response.Error(submitError(err))
	}
	return response.JSONWithStatus(submitted{AppointmentID: cmd.AppointmentID, TraceID: traceID}, http.StatusAccepted)
}

func (a *api) notifications(r *http.Request) response.Response {
	userID, err := realtime.DefaultUserResolver(r)
	if err != nil {
		return response.Error(response.ErrUnauthorized.WithError(err))
	}

	list, err := a.feed.Recent(r.Context(), userID)
	if err != nil {
		return response.Error(err)
	}
	if list == nil {
		list = []notification.Notification{}
	}
	return response.JSON(list)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return response.ErrBadRequest.WithMessage("malformed request body").WithError(err)
	}
	return nil
}

// submitError maps Submit rejections to HTTP errors. Anything unrecognised
// stays a 500.
func submitError(err error) error {
	var transport *command.TransportError
	switch {
	case errors.Is(err, appointment.ErrForbiddenTransition):
		return response.ErrForbidden.WithMessage(err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		return response.ErrConflict.WithMessage(err.Error())
	case errors.Is(err, appointment.ErrReasonRequired):
		return response.ErrUnprocessableEntity.WithMessage(err.Error())
	case errors.Is(err, appointment.ErrInvalidPayload):
		return response.ErrBadRequest.WithMessage(err.Error())
	case errors.As(err, &transport):
		return response.ErrServiceUnavailable.WithError(err)
	default:
		return err
	}
}
