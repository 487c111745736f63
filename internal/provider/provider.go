package provider

import (
	"context"
	"encoding/json"
)

// Interface is the contract every resource provider implements. Config and
// state payloads cross the boundary as JSON so providers stay decoupled from
// the engine's attribute model. Providers must be idempotent: applying a
// create against a remote object that already exists reconciles instead of
// erroring.
type Interface interface {
	// Configure passes provider-level settings (region, endpoints) before
	// any resource operation.
	Configure(ctx context.Context, settings map[string]string) error

	// Apply creates or updates a resource. A nil Desired payload with a
	// non-nil Prior means delete-via-apply and is not used by the engine;
	// deletes go through Delete.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Read fetches the current remote state of a resource. Exists=false
	// means the remote object is gone.
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)

	// Delete removes a resource. Deleting an already-absent object must
	// succeed.
	Delete(ctx context.Context, req *DeleteRequest) error
}

type ApplyRequest struct {
	Type    string
	Name    string
	Desired json.RawMessage
	Prior   json.RawMessage
}

type ApplyResponse struct {
	// State is the provider-returned attribute snapshot (JSON object).
	State json.RawMessage
}

type ReadRequest struct {
	Type    string
	ID      string
	Current json.RawMessage
}

type ReadResponse struct {
	Exists bool
	State  json.RawMessage
}

type DeleteRequest struct {
	Type    string
	ID      string
	Current json.RawMessage
}
