package provider

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Provider identifies one of the fixed backend variants the router can call.
// The set is closed; switches over Provider must handle every constant.
type Provider int

const (
	OpenAI Provider = iota
	Bedrock
	Local
)

// preferenceOrder is the static failover preference used when building a
// candidate sequence. Must list every Provider exactly once.
var preferenceOrder = []Provider{OpenAI, Bedrock, Local}

// All returns every provider in static preference order. The returned slice
// is a copy and safe to reorder.
func All() []Provider {
	all := make([]Provider, len(preferenceOrder))
	copy(all, preferenceOrder)
	return all
}

func (p Provider) String() string {
	switch p {
	case OpenAI:
		return "openai"
	case Bedrock:
		return "aws_bedrock"
	case Local:
		return "local"
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// Valid reports whether p is one of the enumerated providers.
func (p Provider) Valid() bool {
	switch p {
	case OpenAI, Bedrock, Local:
		return true
	}
	return false
}

// Parse converts a provider name (as produced by String) back to a Provider.
func Parse(name string) (Provider, error) {
	switch name {
	case "openai":
		return OpenAI, nil
	case "aws_bedrock":
		return Bedrock, nil
	case "local":
		return Local, nil
	}
	return 0, fmt.Errorf("unknown provider: %q", name)
}

// MarshalJSON encodes the provider as its string name.
func (p Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// Request is an opaque payload handed to an endpoint. The routing layer never
// interprets it; it only needs the size for history bookkeeping.
type Request struct {
	// Model or operation the caller is asking for. E.g., "gpt-4o"
	Model string `json:"model"`

	// Raw request body, passed through to the endpoint untouched.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Size returns the payload size in bytes.
func (r *Request) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Payload)
}

// Response is the successful result of an endpoint invocation.
type Response struct {
	// Raw response body from the endpoint.
	Data json.RawMessage `json:"data,omitempty"`
}

// Endpoint is the invocation contract every concrete provider client
// implements. The orchestrator depends only on this interface: it does not
// care what the endpoint does, only whether the call succeeded and how long
// it took.
type Endpoint interface {
	Invoke(ctx context.Context, request *Request) (*Response, error)
	Provider() Provider
	Shutdown() error
}

// Func adapts a plain function to the Endpoint interface. Useful for embedding
// applications and tests that do not need a full client.
type Func struct {
	Source Provider
	Fn     func(ctx context.Context, request *Request) (*Response, error)
}

func (f *Func) Invoke(ctx context.Context, request *Request) (*Response, error) {
	return f.Fn(ctx, request)
}

func (f *Func) Provider() Provider {
	return f.Source
}

func (f *Func) Shutdown() error {
	return nil
}
