// Package jobs runs the background side of the document lifecycle: the
// overdue-invoice escalation scan and reminder dispatch.
package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReminderScan walks open overdue invoices and raises escalation intent.
	TaskReminderScan = "reminders:scan"
	// TaskReminderDispatch delivers one reminder for one invoice.
	TaskReminderDispatch = "reminders:dispatch"
)

// ReminderDispatchPayload identifies the invoice to remind.
type ReminderDispatchPayload struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

// NewReminderScanTask constructs the periodic scan task.
func NewReminderScanTask() *asynq.Task {
	return asynq.NewTask(TaskReminderScan, nil)
}

// NewReminderDispatchTask constructs a dispatch task for one invoice.
func NewReminderDispatchTask(payload ReminderDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderDispatch, data), nil
}
