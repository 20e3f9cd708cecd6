package sod

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// constraintWire is the tagged JSON/YAML shape of a constraint:
// {"type": "<Kind>", ...fields}.
type constraintWire struct {
	Type             Kind     `json:"type"`
	MinimumApprovers *int     `json:"minimumApprovers,omitempty"`
	DutyKeys         []string `json:"dutyKeys,omitempty"`
	RequiredRoles    []string `json:"requiredRoles,omitempty"`
	Rationale        string   `json:"rationale,omitempty"`
}

const entityConstraint = "SoDConstraint"

// DecodeConstraint parses and validates one tagged constraint.
func DecodeConstraint(data []byte) (Constraint, error) {
	var w constraintWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, contracts.Invalid(entityConstraint, "", "malformed constraint: %v", err)
	}
	return w.constraint()
}

// DecodeConstraints parses a JSON array of tagged constraints.
func DecodeConstraints(data []byte) ([]Constraint, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, contracts.Invalid(entityConstraint, "", "expected an array of constraints: %v", err)
	}
	out := make([]Constraint, 0, len(raws))
	for i, raw := range raws {
		c, err := DecodeConstraint(raw)
		if err != nil {
			return nil, fmt.Errorf("sodConstraints[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (w constraintWire) constraint() (Constraint, error) {
	switch w.Type {
	case KindMakerChecker, KindHazardousZoneNoSelfApproval, KindSafetyClassifiedZoneDualApproval, KindRemoteEstopRequesterSeparation:
		if err := w.onlyFields(); err != nil {
			return nil, err
		}
		switch w.Type {
		case KindMakerChecker:
			return MakerChecker{}, nil
		case KindHazardousZoneNoSelfApproval:
			return HazardousZoneNoSelfApproval{}, nil
		case KindSafetyClassifiedZoneDualApproval:
			return SafetyClassifiedZoneDualApproval{}, nil
		default:
			return RemoteEstopRequesterSeparation{}, nil
		}

	case KindDistinctApprovers:
		if err := w.onlyFields("minimumApprovers"); err != nil {
			return nil, err
		}
		if w.MinimumApprovers == nil {
			return nil, contracts.Invalid(entityConstraint, "minimumApprovers", "required for %s", w.Type)
		}
		if *w.MinimumApprovers < 1 {
			return nil, contracts.Invalid(entityConstraint, "minimumApprovers", "must be >= 1, got %d", *w.MinimumApprovers)
		}
		return DistinctApprovers{MinimumApprovers: *w.MinimumApprovers}, nil

	case KindIncompatibleDuties:
		if err := w.onlyFields("dutyKeys"); err != nil {
			return nil, err
		}
		if len(w.DutyKeys) < 2 {
			return nil, contracts.Invalid(entityConstraint, "dutyKeys", "at least 2 duty keys required, got %d", len(w.DutyKeys))
		}
		if err := nonEmpty("dutyKeys", w.DutyKeys); err != nil {
			return nil, err
		}
		if n := len(Distinct(w.DutyKeys)); n < 2 {
			return nil, contracts.Invalid(entityConstraint, "dutyKeys", "at least 2 distinct duty keys required, got %d", n)
		}
		return IncompatibleDuties{DutyKeys: append([]string(nil), w.DutyKeys...)}, nil

	case KindSpecialistApproval:
		if err := w.onlyFields("requiredRoles", "rationale"); err != nil {
			return nil, err
		}
		if len(w.RequiredRoles) == 0 {
			return nil, contracts.Invalid(entityConstraint, "requiredRoles", "at least one role required")
		}
		if err := nonEmpty("requiredRoles", w.RequiredRoles); err != nil {
			return nil, err
		}
		if strings.TrimSpace(w.Rationale) == "" {
			return nil, contracts.Invalid(entityConstraint, "rationale", "required for %s", w.Type)
		}
		return SpecialistApproval{
			RequiredRoles: append([]string(nil), w.RequiredRoles...),
			Rationale:     w.Rationale,
		}, nil

	case "":
		return nil, contracts.Invalid(entityConstraint, "type", "missing constraint type")
	default:
		return nil, contracts.Invalid(entityConstraint, "type", "unknown constraint type %q", w.Type)
	}
}

// onlyFields rejects fields that do not belong to the constraint kind.
func (w constraintWire) onlyFields(allowed ...string) error {
	set := map[string]bool{
		"minimumApprovers": w.MinimumApprovers != nil,
		"dutyKeys":         w.DutyKeys != nil,
		"requiredRoles":    w.RequiredRoles != nil,
		"rationale":        w.Rationale != "",
	}
	for _, a := range allowed {
		delete(set, a)
	}
	for field, present := range set {
		if present {
			return contracts.Invalid(entityConstraint, field, "not allowed for %s", w.Type)
		}
	}
	return nil
}

func nonEmpty(field string, values []string) error {
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			return contracts.Invalid(entityConstraint, fmt.Sprintf("%s[%d]", field, i), "must not be empty")
		}
	}
	return nil
}

// EncodeConstraint returns the tagged wire form of c.
func EncodeConstraint(c Constraint) ([]byte, error) {
	w := constraintWire{Type: c.Kind()}
	switch c := c.(type) {
	case MakerChecker, HazardousZoneNoSelfApproval, SafetyClassifiedZoneDualApproval, RemoteEstopRequesterSeparation:
	case DistinctApprovers:
		n := c.MinimumApprovers
		w.MinimumApprovers = &n
	case IncompatibleDuties:
		w.DutyKeys = c.DutyKeys
	case SpecialistApproval:
		w.RequiredRoles = c.RequiredRoles
		w.Rationale = c.Rationale
	default:
		panic(contracts.Unhandled("sod.EncodeConstraint", c))
	}
	return json.Marshal(w)
}

func (c MakerChecker) MarshalJSON() ([]byte, error)                     { return EncodeConstraint(c) }
func (c DistinctApprovers) MarshalJSON() ([]byte, error)                { return EncodeConstraint(c) }
func (c IncompatibleDuties) MarshalJSON() ([]byte, error)               { return EncodeConstraint(c) }
func (c HazardousZoneNoSelfApproval) MarshalJSON() ([]byte, error)      { return EncodeConstraint(c) }
func (c SafetyClassifiedZoneDualApproval) MarshalJSON() ([]byte, error) { return EncodeConstraint(c) }
func (c RemoteEstopRequesterSeparation) MarshalJSON() ([]byte, error)   { return EncodeConstraint(c) }
func (c SpecialistApproval) MarshalJSON() ([]byte, error)               { return EncodeConstraint(c) }

// Constraints is a list of constraints that round-trips through the tagged
// wire format.
type Constraints []Constraint

// UnmarshalJSON decodes and validates every element.
func (cs *Constraints) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*cs = nil
		return nil
	}
	decoded, err := DecodeConstraints(data)
	if err != nil {
		return err
	}
	*cs = decoded
	return nil
}

// violationWire is the tagged JSON shape of a violation:
// {"type": "<Kind>Violation", "message": "...", ...fields}.
type violationWire struct {
	Type                  string   `json:"type"`
	Message               string   `json:"message,omitempty"`
	InitiatorUserID       string   `json:"initiatorUserId,omitempty"`
	RequiredApprovers     int      `json:"requiredApprovers,omitempty"`
	DistinctApprovers     *int     `json:"distinctApprovers,omitempty"`
	ApproverUserIDs       []string `json:"approverUserIds,omitempty"`
	UserID                string   `json:"userId,omitempty"`
	DutyKeys              []string `json:"dutyKeys,omitempty"`
	MissionProposerUserID string   `json:"missionProposerUserId,omitempty"`
	EstopRequesterUserID  string   `json:"estopRequesterUserId,omitempty"`
	RequiredRoles         []string `json:"requiredRoles,omitempty"`
}

// ViolationType returns the wire tag for violations of kind k.
func ViolationType(k Kind) string {
	return string(k) + "Violation"
}

// EncodeViolation returns the tagged wire form of v.
func EncodeViolation(v Violation) ([]byte, error) {
	w := violationWire{Type: ViolationType(v.Kind()), Message: v.Message()}
	switch v := v.(type) {
	case MakerCheckerViolation:
		w.InitiatorUserID = v.InitiatorUserID
	case DistinctApproversViolation:
		n := v.DistinctApprovers
		w.RequiredApprovers = v.RequiredApprovers
		w.DistinctApprovers = &n
		w.ApproverUserIDs = nonNil(v.ApproverUserIDs)
	case IncompatibleDutiesViolation:
		w.UserID = v.UserID
		w.DutyKeys = v.DutyKeys
	case HazardousZoneNoSelfApprovalViolation:
		w.MissionProposerUserID = v.MissionProposerUserID
	case SafetyClassifiedZoneDualApprovalViolation:
		n := v.DistinctApprovers
		w.RequiredApprovers = v.RequiredApprovers
		w.DistinctApprovers = &n
	case RemoteEstopRequesterSeparationViolation:
		w.EstopRequesterUserID = v.EstopRequesterUserID
	case SpecialistApprovalViolation:
		w.RequiredRoles = v.RequiredRoles
		w.ApproverUserIDs = nonNil(v.ApproverUserIDs)
	default:
		panic(contracts.Unhandled("sod.EncodeViolation", v))
	}
	return json.Marshal(w)
}

// DecodeViolation reads a violation previously written by EncodeViolation.
func DecodeViolation(data []byte) (Violation, error) {
	var w violationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, contracts.Invalid("Violation", "", "malformed violation: %v", err)
	}
	distinct := 0
	if w.DistinctApprovers != nil {
		distinct = *w.DistinctApprovers
	}
	switch w.Type {
	case ViolationType(KindMakerChecker):
		return MakerCheckerViolation{InitiatorUserID: w.InitiatorUserID}, nil
	case ViolationType(KindDistinctApprovers):
		return DistinctApproversViolation{
			RequiredApprovers: w.RequiredApprovers,
			DistinctApprovers: distinct,
			ApproverUserIDs:   nonNil(w.ApproverUserIDs),
		}, nil
	case ViolationType(KindIncompatibleDuties):
		return IncompatibleDutiesViolation{UserID: w.UserID, DutyKeys: w.DutyKeys}, nil
	case ViolationType(KindHazardousZoneNoSelfApproval):
		return HazardousZoneNoSelfApprovalViolation{MissionProposerUserID: w.MissionProposerUserID}, nil
	case ViolationType(KindSafetyClassifiedZoneDualApproval):
		return SafetyClassifiedZoneDualApprovalViolation{
			RequiredApprovers: w.RequiredApprovers,
			DistinctApprovers: distinct,
		}, nil
	case ViolationType(KindRemoteEstopRequesterSeparation):
		return RemoteEstopRequesterSeparationViolation{EstopRequesterUserID: w.EstopRequesterUserID}, nil
	case ViolationType(KindSpecialistApproval):
		return SpecialistApprovalViolation{
			RequiredRoles:   w.RequiredRoles,
			ApproverUserIDs: nonNil(w.ApproverUserIDs),
		}, nil
	default:
		return nil, contracts.Invalid("Violation", "type", "unknown violation type %q", w.Type)
	}
}

func (v MakerCheckerViolation) MarshalJSON() ([]byte, error)      { return EncodeViolation(v) }
func (v DistinctApproversViolation) MarshalJSON() ([]byte, error) { return EncodeViolation(v) }
func (v IncompatibleDutiesViolation) MarshalJSON() ([]byte, error) {
	return EncodeViolation(v)
}
func (v HazardousZoneNoSelfApprovalViolation) MarshalJSON() ([]byte, error) {
	return EncodeViolation(v)
}
func (v SafetyClassifiedZoneDualApprovalViolation) MarshalJSON() ([]byte, error) {
	return EncodeViolation(v)
}
func (v RemoteEstopRequesterSeparationViolation) MarshalJSON() ([]byte, error) {
	return EncodeViolation(v)
}
func (v SpecialistApprovalViolation) MarshalJSON() ([]byte, error) { return EncodeViolation(v) }

// Violations is a list of violations that round-trips through the tagged
// wire format.
type Violations []Violation

// UnmarshalJSON decodes every element with DecodeViolation.
func (vs *Violations) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Violations, 0, len(raws))
	for _, raw := range raws {
		v, err := DecodeViolation(raw)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*vs = out
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
