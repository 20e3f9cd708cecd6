// Package safety classifies the physical hazards of robot and actuator
// operations and maps them to a governance decision and a recommended
// execution tier, traceable to ISO 13849-1.
package safety

import (
	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// StandardsRef is attached to every hazard classification.
const StandardsRef = "ISO 13849-1"

// Operation names the action being dispatched.
type Operation string

// Operations with hazard rules.
const (
	OpRobotEstopRequest  Operation = "robot:estop_request"
	OpRobotExecuteAction Operation = "robot:execute_action"
	OpActuatorSetState   Operation = "actuator:set_state"
)

// HazardClass is the hazard rating of a robot.
type HazardClass string

const (
	HazardLow      HazardClass = "Low"
	HazardMedium   HazardClass = "Medium"
	HazardHigh     HazardClass = "High"
	HazardCritical HazardClass = "Critical"
)

// RobotClass is the kinematic class of a robot.
type RobotClass string

const (
	RobotManipulator RobotClass = "Manipulator"
	RobotMobile      RobotClass = "Mobile"
	RobotAerial      RobotClass = "Aerial"
	RobotHumanoid    RobotClass = "Humanoid"
	RobotStationary  RobotClass = "Stationary"
)

// ConstraintType is the kind of an applied safety-case constraint.
type ConstraintType string

const (
	ConstraintSpeedLimit       ConstraintType = "SpeedLimit"
	ConstraintPayloadLimit     ConstraintType = "PayloadLimit"
	ConstraintProximityZone    ConstraintType = "ProximityZone"
	ConstraintOperatorRequired ConstraintType = "OperatorRequired"
	ConstraintHardStop         ConstraintType = "HardStop"
	ConstraintGeofence         ConstraintType = "Geofence"
)

// Severity of an applied safety-case constraint.
type Severity string

const (
	SeverityAdvisory Severity = "Advisory"
	SeverityWarning  Severity = "Warning"
	SeverityHardStop Severity = "HardStop"
)

// Robot describes the robot an operation targets.
type Robot struct {
	RobotID     string      `json:"robotId"`
	RobotClass  RobotClass  `json:"robotClass"`
	HazardClass HazardClass `json:"hazardClass"`
}

// SafetyClassified reports whether the robot is safety-classified: hazard
// class High or Critical, or a manipulator, aerial or humanoid platform.
func (r Robot) SafetyClassified() bool {
	switch r.HazardClass {
	case HazardHigh, HazardCritical:
		return true
	}
	switch r.RobotClass {
	case RobotManipulator, RobotAerial, RobotHumanoid:
		return true
	}
	return false
}

// ActuatorState is the target state of an actuator:set_state operation.
type ActuatorState struct {
	StateKey         string `json:"stateKey"`
	Reversible       bool   `json:"reversible"`
	SafetyClassified bool   `json:"safetyClassified"`
}

// AppliedConstraint is one constraint of a safety case.
type AppliedConstraint struct {
	ConstraintID string         `json:"constraintId"`
	Type         ConstraintType `json:"type"`
	Severity     Severity       `json:"severity"`
	Description  string         `json:"description,omitempty"`
}

// SafetyCase is the set of safety constraints attached to a robot action.
type SafetyCase struct {
	SafetyCaseID       string              `json:"safetyCaseId"`
	AppliedConstraints []AppliedConstraint `json:"appliedConstraints"`
}

// Context is the classifier input.
type Context struct {
	Operation           Operation               `json:"operation"`
	ExecutionTier       contracts.ExecutionTier `json:"executionTier"`
	Robot               *Robot                  `json:"robot,omitempty"`
	ProximityZoneActive bool                    `json:"proximityZoneActive,omitempty"`
	ActuatorState       *ActuatorState          `json:"actuatorState,omitempty"`
	SafetyCase          *SafetyCase             `json:"safetyCase,omitempty"`
}

// HazardCode identifies a hazard finding.
type HazardCode string

const (
	HazardRobotEstopRequest                   HazardCode = "RobotEstopRequest"
	HazardRobotExecuteInProximityZone         HazardCode = "RobotExecuteInProximityZone"
	HazardActuatorSafetyClassifiedStateChange HazardCode = "ActuatorSafetyClassifiedStateChange"
	HazardHighHazardRobotAction               HazardCode = "HighHazardRobotAction"
	HazardHardStopConstraint                  HazardCode = "HardStopConstraint"
	HazardOperatorRequiredConstraint          HazardCode = "OperatorRequiredConstraint"
	HazardSpeedOrForceConstraint              HazardCode = "SpeedOrForceConstraint"
)

// HazardClassification is a labelled physical-risk finding with the minimum
// tier it recommends.
type HazardClassification struct {
	Code            HazardCode              `json:"code"`
	RecommendedTier contracts.ExecutionTier `json:"recommendedTier"`
	Reason          string                  `json:"reason"`
	StandardsRef    string                  `json:"standardsRef"`
}

// Result is the classifier output. Recommendation is empty when no hazard
// was found.
type Result struct {
	Decision              contracts.Decision      `json:"decision"`
	Recommendation        contracts.ExecutionTier `json:"recommendation,omitempty"`
	HazardClassifications []HazardClassification  `json:"hazardClassifications"`
}

// Has reports whether the result contains a hazard with the given code.
func (r Result) Has(code HazardCode) bool {
	return hasCode(r.HazardClassifications, code)
}

func hasCode(hs []HazardClassification, code HazardCode) bool {
	for _, h := range hs {
		if h.Code == code {
			return true
		}
	}
	return false
}
