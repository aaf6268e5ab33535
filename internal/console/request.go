package console

import (
	"encoding/json"
	"strings"
)

// TransactionMode selects whether and how a run is wrapped in a unit of work.
type TransactionMode int

const (
	TxNone TransactionMode = iota
	TxReadWrite
	TxReadOnly
)

func (m TransactionMode) String() string {
	switch m {
	case TxReadWrite:
		return "read-write"
	case TxReadOnly:
		return "read-only"
	default:
		return "none"
	}
}

// Request is a parsed execution request. It is not modified after parsing.
type Request struct {
	Script      string
	Template    string
	SpaceRef    string
	DocumentRef string
	URLArgs     map[string]string
	RunAs       string
	Mode        TransactionMode
	Channel     string

	// TransportArgs are arguments supplied by the transport itself, such as
	// HTTP query parameters. URLArgs take precedence over them.
	TransportArgs map[string]string
}

// wireRequest is the JSON body accepted by every transport.
type wireRequest struct {
	Script              string            `json:"script"`
	Template            string            `json:"template,omitempty"`
	SpaceRef            string            `json:"spaceRef,omitempty"`
	DocumentRef         string            `json:"documentRef,omitempty"`
	URLArgs             map[string]string `json:"urlargs,omitempty"`
	RunAs               string            `json:"runAs,omitempty"`
	UseTransaction      bool              `json:"useTransaction"`
	TransactionReadOnly bool              `json:"transactionReadOnly"`
	ResultChannel       string            `json:"resultChannel,omitempty"`
}

// ParseRequest decodes a JSON request body. Failures are *RequestError
// values matching ErrInvalidRequest.
func ParseRequest(data []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return Request{}, &RequestError{Reason: err.Error()}
	}
	return Request{
		Script:      w.Script,
		Template:    w.Template,
		SpaceRef:    w.SpaceRef,
		DocumentRef: w.DocumentRef,
		URLArgs:     w.URLArgs,
		RunAs:       w.RunAs,
		Mode:        ModeOf(w.UseTransaction, w.TransactionReadOnly),
		Channel:     w.ResultChannel,
	}.Normalize()
}

// ModeOf maps the transaction flags of a request to a mode. readOnly has
// no effect without useTransaction.
func ModeOf(useTransaction, readOnly bool) TransactionMode {
	switch {
	case useTransaction && readOnly:
		return TxReadOnly
	case useTransaction:
		return TxReadWrite
	default:
		return TxNone
	}
}

// Normalize trims references and the principal, and rejects a request
// without a script.
func (r Request) Normalize() (Request, error) {
	if strings.TrimSpace(r.Script) == "" {
		return Request{}, &RequestError{Reason: "script is required"}
	}
	r.SpaceRef = strings.TrimSpace(r.SpaceRef)
	r.DocumentRef = strings.TrimSpace(r.DocumentRef)
	r.RunAs = strings.TrimSpace(r.RunAs)
	return r, nil
}

// MarshalJSON encodes the request in the form ParseRequest accepts.
func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{
		Script:              r.Script,
		Template:            r.Template,
		SpaceRef:            r.SpaceRef,
		DocumentRef:         r.DocumentRef,
		URLArgs:             r.URLArgs,
		RunAs:               r.RunAs,
		UseTransaction:      r.Mode != TxNone,
		TransactionReadOnly: r.Mode == TxReadOnly,
		ResultChannel:       r.Channel,
	})
}

// Args returns the argument map exposed to scripts: transport arguments
// overlaid with the request's own arguments.
func (r Request) Args() map[string]string {
	args := make(map[string]string, len(r.TransportArgs)+len(r.URLArgs))
	for k, v := range r.TransportArgs {
		args[k] = v
	}
	for k, v := range r.URLArgs {
		args[k] = v
	}
	return args
}
