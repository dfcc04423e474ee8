package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/notify"
)

type fakeSender struct {
	failFor map[string]error
	sent    []string
}

func (f *fakeSender) Type() string { return "email" }

func (f *fakeSender) Send(_ context.Context, recipient string, _ notify.Message) error {
	if err, ok := f.failFor[recipient]; ok {
		return err
	}
	f.sent = append(f.sent, recipient)
	return nil
}

func notificationJob(t *testing.T, payload models.NotificationJobPayload) *models.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &models.Job{ID: "job-1", Queue: models.QueueNotification, Name: "notify", Payload: raw}
}

func TestNotificationFanOut(t *testing.T) {
	sender := &fakeSender{}
	h := &NotificationHandler{Sender: sender}

	raw, err := h.Handle(context.Background(), notificationJob(t, models.NotificationJobPayload{
		BugReportID: "bug-1",
		ProjectID:   "proj-1",
		Type:        "email",
		Recipients:  []string{"a@example.com", "b@example.com"},
		Subject:     "New bug report",
	}))
	require.NoError(t, err)

	var result models.NotificationJobResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 2, result.RecipientCount)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Zero(t, result.FailureCount)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sender.sent)
}

func TestNotificationPartialFailureCompletes(t *testing.T) {
	sender := &fakeSender{failFor: map[string]error{"b@example.com": errors.New("mailbox full")}}
	h := &NotificationHandler{Sender: sender}

	raw, err := h.Handle(context.Background(), notificationJob(t, models.NotificationJobPayload{
		BugReportID: "bug-1",
		Type:        "email",
		Recipients:  []string{"a@example.com", "b@example.com", "c@example.com"},
	}))
	require.NoError(t, err)

	var result models.NotificationJobResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "b@example.com")
	assert.Contains(t, result.Errors[0], "mailbox full")
}

func TestNotificationAllFailedIsTransient(t *testing.T) {
	sender := &fakeSender{failFor: map[string]error{
		"a@example.com": errors.New("gateway down"),
		"b@example.com": errors.New("gateway down"),
	}}
	h := &NotificationHandler{Sender: sender}

	_, err := h.Handle(context.Background(), notificationJob(t, models.NotificationJobPayload{
		BugReportID: "bug-1",
		Type:        "email",
		Recipients:  []string{"a@example.com", "b@example.com"},
	}))
	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.True(t, Retryable(err))
}

func TestNotificationValidation(t *testing.T) {
	h := &NotificationHandler{Sender: &fakeSender{}}

	var validation *ValidationError
	_, err := h.Handle(context.Background(), notificationJob(t, models.NotificationJobPayload{BugReportID: "bug-1"}))
	require.ErrorAs(t, err, &validation)
	assert.False(t, Retryable(err))

	_, err = h.Handle(context.Background(), &models.Job{ID: "job-2", Payload: json.RawMessage(`{"recipients":`)})
	require.ErrorAs(t, err, &validation)
}
