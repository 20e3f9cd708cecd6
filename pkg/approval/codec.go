package approval

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/schema"
)

// record is the wire form shared by both shapes. Timestamps are RFC 3339
// strings in *Iso fields.
type record struct {
	ApprovalID        string           `json:"approvalId"`
	WorkspaceID       string           `json:"workspaceId"`
	RunID             string           `json:"runId"`
	PlanID            string           `json:"planId"`
	WorkItemID        string           `json:"workItemId,omitempty"`
	Prompt            string           `json:"prompt"`
	RequestedAtIso    string           `json:"requestedAtIso"`
	RequestedByUserID string           `json:"requestedByUserId"`
	AssigneeUserID    string           `json:"assigneeUserId,omitempty"`
	DueAtIso          string           `json:"dueAtIso,omitempty"`
	EscalationChain   []EscalationStep `json:"escalationChain,omitempty"`
	Status            Status           `json:"status"`
	DecidedAtIso      string           `json:"decidedAtIso,omitempty"`
	DecidedByUserID   string           `json:"decidedByUserId,omitempty"`
	Rationale         string           `json:"rationale,omitempty"`
}

// Parse validates a JSON approval record and returns the matching shape.
// A Pending record carrying any decision field is rejected, and a decided
// record must carry all of them.
func Parse(data []byte) (Approval, error) {
	if err := schema.ValidateJSON(schema.Approval, data); err != nil {
		return nil, err
	}

	var rec record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return nil, contracts.Invalid(entity, "", "%v", err)
	}

	req, err := rec.request()
	if err != nil {
		return nil, err
	}

	if rec.Status == StatusPending {
		if rec.DecidedAtIso != "" || rec.DecidedByUserID != "" || rec.Rationale != "" {
			return nil, contracts.Invalid(entity, "status", "a Pending approval must not carry decision fields")
		}
		p, err := NewPending(req)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	decidedAt, err := parseTime("decidedAtIso", rec.DecidedAtIso)
	if err != nil {
		return nil, err
	}
	res := Resolution{
		Outcome:         rec.Status,
		DecidedAt:       decidedAt,
		DecidedByUserID: rec.DecidedByUserID,
		Rationale:       rec.Rationale,
	}
	d, err := Decide(Pending{Request: req}, res)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (rec record) request() (Request, error) {
	requestedAt, err := parseTime("requestedAtIso", rec.RequestedAtIso)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		ApprovalID:        rec.ApprovalID,
		WorkspaceID:       rec.WorkspaceID,
		RunID:             rec.RunID,
		PlanID:            rec.PlanID,
		WorkItemID:        rec.WorkItemID,
		Prompt:            rec.Prompt,
		RequestedAt:       requestedAt,
		RequestedByUserID: rec.RequestedByUserID,
		AssigneeUserID:    rec.AssigneeUserID,
		EscalationChain:   rec.EscalationChain,
	}
	if rec.DueAtIso != "" {
		due, err := parseTime("dueAtIso", rec.DueAtIso)
		if err != nil {
			return Request{}, err
		}
		req.DueAt = &due
	}
	return req, nil
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, contracts.Invalid(entity, field, "not an RFC 3339 timestamp: %q", s)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func fromRequest(r Request, status Status) record {
	rec := record{
		ApprovalID:        r.ApprovalID,
		WorkspaceID:       r.WorkspaceID,
		RunID:             r.RunID,
		PlanID:            r.PlanID,
		WorkItemID:        r.WorkItemID,
		Prompt:            r.Prompt,
		RequestedAtIso:    formatTime(r.RequestedAt),
		RequestedByUserID: r.RequestedByUserID,
		AssigneeUserID:    r.AssigneeUserID,
		EscalationChain:   r.EscalationChain,
		Status:            status,
	}
	if r.DueAt != nil {
		rec.DueAtIso = formatTime(*r.DueAt)
	}
	return rec
}

// MarshalJSON writes the Pending wire form.
func (p Pending) MarshalJSON() ([]byte, error) {
	return json.Marshal(fromRequest(p.Request, StatusPending))
}

// MarshalJSON writes the Decided wire form.
func (d Decided) MarshalJSON() ([]byte, error) {
	rec := fromRequest(d.Request, d.Outcome)
	rec.DecidedAtIso = formatTime(d.DecidedAt)
	rec.DecidedByUserID = d.DecidedByUserID
	rec.Rationale = d.Rationale
	return json.Marshal(rec)
}
