package v16

import (
	"encoding/json"
	"fmt"
)

// Decode parses a raw OCPP-J frame into a typed Call. Per spec.md's
// left-totality requirement, Decode never panics: any array of length >= 3
// whose first element is MessageTypeCall and whose elements 1-2 are strings
// either decodes to a Call or returns a *DecodeError naming the reason.
func Decode(raw []byte) (*Call, *DecodeError) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("top-level JSON is not an array: %s", err))}
	}

	if len(envelope) < 3 {
		return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("Invalid message format: expected at least 3 elements, found %d.", len(envelope)))}
	}

	var msgType int
	if err := json.Unmarshal(envelope[0], &msgType); err != nil || msgType != MessageTypeCall {
		return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, "Invalid message type: expected the Call type id 2.")}
	}

	var uuid string
	if err := json.Unmarshal(envelope[1], &uuid); err != nil {
		return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, "Invalid UUID: expected a string but found none.")}
	}

	var action string
	if err := json.Unmarshal(envelope[2], &action); err != nil {
		return nil, &DecodeError{UUID: uuid, HasUUID: true, CallError: NewCallError(ErrorFormationViolation, "Invalid message type: expected a string but found none.")}
	}

	var payloadRaw json.RawMessage
	if len(envelope) >= 4 {
		payloadRaw = envelope[3]
	}

	payload, decErr := decodePayload(Action(action), payloadRaw)
	if decErr != nil {
		decErr.UUID = uuid
		decErr.HasUUID = true
		return nil, decErr
	}

	return &Call{UUID: uuid, Action: Action(action), Payload: payload}, nil
}

func decodePayload(action Action, raw json.RawMessage) (any, *DecodeError) {
	switch action {
	case ActionHeartbeat:
		return HeartbeatRequest{}, nil
	case ActionBootNotification:
		var req BootNotificationRequest
		if err := unmarshalPayload(raw, &req); err != nil {
			return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("Failed to deserialize BootNotificationRequest: %s", err))}
		}
		return req, nil
	case ActionStatusNotification:
		var req StatusNotificationRequest
		if err := unmarshalPayload(raw, &req); err != nil {
			return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("Failed to deserialize StatusNotificationRequest: %s", err))}
		}
		return req, nil
	case ActionAuthorize:
		var req AuthorizeRequest
		if err := unmarshalPayload(raw, &req); err != nil {
			return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("Failed to deserialize AuthorizeRequest: %s", err))}
		}
		return req, nil
	case ActionStartTransaction:
		var req StartTransactionRequest
		if err := unmarshalPayload(raw, &req); err != nil {
			return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("Failed to deserialize StartTransactionRequest: %s", err))}
		}
		return req, nil
	case ActionStopTransaction:
		var req StopTransactionRequest
		if err := unmarshalPayload(raw, &req); err != nil {
			return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("Failed to deserialize StopTransactionRequest: %s", err))}
		}
		return req, nil
	case ActionMeterValues:
		var req MeterValuesRequest
		if err := unmarshalPayload(raw, &req); err != nil {
			return nil, &DecodeError{CallError: NewCallError(ErrorFormationViolation, fmt.Sprintf("Failed to deserialize MeterValuesRequest: %s", err))}
		}
		return req, nil
	default:
		return nil, &DecodeError{CallError: NewCallError(ErrorNotSupported, fmt.Sprintf("Unknown message type: '%s'.", action))}
	}
}

func unmarshalPayload(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(raw, dest)
}

// Encode serializes a handler's typed response onto the wire for the given
// uuid as a four-element CallResult `[3, uuid, action, payload]` — the
// source's CallResult encoder declares a length-3 sequence header but writes
// four elements; this is the canonical form and is reproduced deliberately
// (see SPEC_FULL.md §4.2). CallErrors are serialized by EncodeError as the
// five-element `[4, uuid, code, description, details]`.
func Encode(uuid string, action Action, response any) ([]byte, error) {
	envelope := []any{MessageTypeCallResult, uuid, string(action), response}
	return json.Marshal(envelope)
}

// EncodeError serializes a CallError envelope for uuid. If uuid is empty
// (the decode failure happened before a UUID could be recovered) the caller
// should not call EncodeError at all — per spec.md §7, no response is
// addressable without a UUID.
func EncodeError(uuid string, callErr *CallError) ([]byte, error) {
	envelope := []any{MessageTypeCallError, uuid, string(callErr.Code), callErr.description, callErr.Details}
	return json.Marshal(envelope)
}
