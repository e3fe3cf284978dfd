// Package v16 implements the OCPP 1.6 wire protocol: the framed-array
// envelope, the action registry, and the handler dispatch table.
package v16

import "fmt"

// MessageTypeId values from the OCPP-J envelope, section 4 of the OCPP 1.6
// specification.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Action identifies a recognized OCPP 1.6 Call action.
type Action string

const (
	ActionBootNotification  Action = "BootNotification"
	ActionHeartbeat         Action = "Heartbeat"
	ActionStatusNotification Action = "StatusNotification"
	ActionAuthorize         Action = "Authorize"
	ActionStartTransaction  Action = "StartTransaction"
	ActionStopTransaction   Action = "StopTransaction"
	ActionMeterValues       Action = "MeterValues"
)

// SupportedActions lists every action the codec can decode. Order is
// insignificant; it exists for iteration in logs and tests.
var SupportedActions = []Action{
	ActionBootNotification,
	ActionHeartbeat,
	ActionStatusNotification,
	ActionAuthorize,
	ActionStartTransaction,
	ActionStopTransaction,
	ActionMeterValues,
}

// ErrorCode is one of the fixed OCPP-J CallError codes this runtime emits.
type ErrorCode string

const (
	ErrorFormationViolation ErrorCode = "FormationViolation"
	ErrorNotSupported       ErrorCode = "NotSupported"
	ErrorInternalError      ErrorCode = "InternalError"
	ErrorGenericError       ErrorCode = "GenericError"
)

// errorDescriptions carries the verbatim CallError descriptions required by
// the OCPP-J convention.
var errorDescriptions = map[ErrorCode]string{
	ErrorFormationViolation: "Payload for Action is syntactically incorrect or not conform the PDU structure for Action",
	ErrorNotSupported:       "Requested Action is recognized but not supported by the receiver",
	ErrorInternalError:      "An internal error occurred and the receiver was not able to process the requested Action successfully",
	ErrorGenericError:       "Something unexpected happened.",
}

// Description returns the fixed human-readable text for a CallError code.
func (c ErrorCode) Description() string {
	return errorDescriptions[c]
}

// Call is the decoded form of an inbound OCPP Call: [2, uuid, action, payload].
type Call struct {
	UUID    string
	Action  Action
	Payload any
}

// CallError is returned by a handler, or synthesized by the codec/dispatcher,
// to signal a request that could not be fulfilled.
type CallError struct {
	Code        ErrorCode
	Details     any
	description string
}

// NewCallError builds a CallError with the fixed description for code.
func NewCallError(code ErrorCode, details any) *CallError {
	return &CallError{Code: code, Details: details, description: code.Description()}
}

func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.description)
}

// DecodeError is returned by Decode when the envelope itself cannot be
// turned into a Call. UUID is populated, and HasUUID set, whenever the UUID
// is recoverable so the caller can still emit a CallError.
type DecodeError struct {
	UUID      string
	HasUUID   bool
	CallError *CallError
}

func (e *DecodeError) Error() string {
	if e.CallError != nil {
		return e.CallError.Error()
	}
	return "ocpp: malformed envelope"
}
