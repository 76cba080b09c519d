package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/combustion-ml/emberd/internal/manifest"
)

// A command or response kind carried in an envelope.
type Command string

const (
	CmdBuild    Command = "build"    // Execute a recipe.
	CmdPlan     Command = "plan"     // Resolve a recipe into a build plan.
	CmdStatus   Command = "status"   // Query daemon status.
	CmdShutdown Command = "shutdown" // Stop the daemon.
	CmdOK       Command = "ok"       // Successful response.
	CmdError    Command = "error"    // Error response.
)

// Wraps a command and its payload on the wire.
//
// Messages are newline-delimited JSON: one envelope per line, one
// request-response exchange per connection.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Asks the daemon to execute a recipe.
type BuildRequest struct {
	Recipe    *manifest.Recipe `json:"recipe"`
	Resource  string           `json:"resource"`
	Output    string           `json:"output"`
	Root      string           `json:"root"`
	Platforms []string         `json:"platforms,omitempty"`
}

// Reports a completed build.
type BuildResult struct {
	Output  string   `json:"output"`
	Targets []string `json:"targets"`
}

// Asks the daemon to resolve a recipe without building it.
type PlanRequest struct {
	Recipe *manifest.Recipe `json:"recipe"`
}

// Reports daemon status.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"`
}

// Reports a failed command.
type ErrorResult struct {
	Message string `json:"message"`
}

// Serializes a command and payload into an envelope.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		env.Payload = b
	}

	return json.Marshal(env)
}

// Deserializes an envelope, returning the command and raw payload.
func Decode(b []byte) (Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env, env.Payload, nil
}

// Deserializes an envelope payload into a concrete request or result type.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &v, nil
}
