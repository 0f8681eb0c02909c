package slasched

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskSLAScan is the periodic sweep over leads whose follow-up deadline
// has passed. It carries no payload; the handler reads due leads from
// the database at execution time.
const TaskSLAScan = "leads.sla.scan"

// TaskLeadTimeout carries one synthetic timeout event for one lead.
const TaskLeadTimeout = "leads.sla.timeout"

type LeadTimeoutPayload struct {
	LeadID  string `json:"leadId"`
	Kind    string `json:"kind"`
	FiredAt int64  `json:"firedAt"`
}

func NewSLAScanTask() *asynq.Task {
	return asynq.NewTask(TaskSLAScan, nil)
}

func NewLeadTimeoutTask(payload LeadTimeoutPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadTimeout, data), nil
}

func ParseLeadTimeoutPayload(task *asynq.Task) (LeadTimeoutPayload, error) {
	var payload LeadTimeoutPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadTimeoutPayload{}, err
	}
	return payload, nil
}
