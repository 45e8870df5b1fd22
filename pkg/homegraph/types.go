package homegraph

import (
	"context"
	"fmt"
)

const (
	reportStatePath = "/v1/devices:reportStateAndNotification"
	executePath     = "/v1/devices:execute"

	commandOnOff = "action.devices.commands.OnOff"
)

// Credentials supplies the bearer token for each call.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

type ReportRequest struct {
	RequestID        string
	AgentUserID      string
	DeviceID         string
	On               bool
	Online           bool
	CurrentEnergyUse float64
}

type CommandRequest struct {
	AgentUserID string
	DeviceID    string
	On          bool
}

// Response is the provider's decoded JSON body, passed through unmodified.
type Response map[string]interface{}

// TransportError is returned for network failures, non-2xx responses and
// bodies that cannot be decoded.
type TransportError struct {
	Op         string
	StatusCode int
	Payload    Response
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("homegraph %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("homegraph %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type reportStateBody struct {
	RequestID   string             `json:"requestId"`
	AgentUserID string             `json:"agentUserId"`
	Payload     reportStatePayload `json:"payload"`
}

type reportStatePayload struct {
	Devices reportStateDevices `json:"devices"`
}

type reportStateDevices struct {
	States map[string]deviceState `json:"states"`
}

type deviceState struct {
	On               bool    `json:"on"`
	Online           bool    `json:"online"`
	CurrentEnergyUse float64 `json:"currentEnergyUse"`
}

type executeBody struct {
	AgentUserID string           `json:"agentUserId"`
	Commands    []executeCommand `json:"commands"`
}

type executeCommand struct {
	DeviceIDs []string    `json:"deviceIds"`
	Execution []execution `json:"execution"`
}

type execution struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params"`
}
