// Package celery encodes and decodes the Celery-compatible envelope spec
// §4.2 describes on top of the raw rpcport.ClientRequest/Reply byte
// payloads: a request body is the JSON triple
// [positional_args, kwargs, metadata], and a reply body is
// {task_id, status, result}. callbacks/errbacks/chain/chord in metadata
// are accepted on read and otherwise ignored — this layer only speaks
// the wire shape, it does not schedule continuations.
package celery

import (
	"encoding/json"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

type Status string

const (
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Metadata carries the continuation fields a Celery producer may attach.
// This side only reads them back out; it never follows them.
type Metadata struct {
	Callbacks []json.RawMessage `json:"callbacks,omitempty"`
	Errbacks  []json.RawMessage `json:"errbacks,omitempty"`
	Chain     []json.RawMessage `json:"chain,omitempty"`
	Chord     json.RawMessage   `json:"chord,omitempty"`
}

// Request is the decoded form of the [args, kwargs, metadata] triple.
type Request struct {
	Args     []json.RawMessage         `json:"args"`
	Kwargs   map[string]json.RawMessage `json:"kwargs"`
	Metadata Metadata                   `json:"metadata"`
}

// EncodeRequest marshals args/kwargs/metadata into the triple body a
// Celery-speaking consumer expects on the wire.
func EncodeRequest(args []json.RawMessage, kwargs map[string]json.RawMessage, meta Metadata) ([]byte, error) {
	if args == nil {
		args = []json.RawMessage{}
	}
	if kwargs == nil {
		kwargs = map[string]json.RawMessage{}
	}
	triple := [3]any{args, kwargs, meta}
	b, err := json.Marshal(triple)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidJsonFormat, "encode celery envelope", err)
	}
	return b, nil
}

// DecodeRequest parses a [args, kwargs, metadata] JSON triple body.
func DecodeRequest(body []byte) (Request, error) {
	var triple [3]json.RawMessage
	if err := json.Unmarshal(body, &triple); err != nil {
		return Request{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode celery envelope", err)
	}
	var req Request
	if len(triple[0]) > 0 {
		if err := json.Unmarshal(triple[0], &req.Args); err != nil {
			return Request{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode celery args", err)
		}
	}
	if len(triple[1]) > 0 {
		if err := json.Unmarshal(triple[1], &req.Kwargs); err != nil {
			return Request{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode celery kwargs", err)
		}
	}
	if len(triple[2]) > 0 {
		if err := json.Unmarshal(triple[2], &req.Metadata); err != nil {
			return Request{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode celery metadata", err)
		}
	}
	return req, nil
}

// Reply is the decoded {task_id, status, result} response shape.
type Reply struct {
	TaskID string          `json:"task_id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

func EncodeReply(r Reply) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidJsonFormat, "encode celery reply", err)
	}
	return b, nil
}

func DecodeReply(body []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(body, &r); err != nil {
		return Reply{}, apperr.Wrap(apperr.ReplyCorrupted, "decode celery reply", err)
	}
	return r, nil
}
