// Package patch merges ordered JSON Patch batches into a local document
// snapshot. The snapshot is the client-side mirror of server state; it is
// only ever replaced through Apply (or a full reset), never mutated in
// place, so callers can rely on reference comparison for change detection.
package patch

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/taskdeck/deckstream/pkg/errors"
)

// Filter drops operations before merge, e.g. to deduplicate entries the
// caller already injected locally. It must preserve relative order.
type Filter func(ops []json.RawMessage) []json.RawMessage

// Apply merges an ordered batch of operations into doc and returns the new
// snapshot. Operations are structurally dependent on prior state, so they
// are applied strictly in the order given; a malformed operation fails the
// whole batch and the caller keeps its previous snapshot.
//
// A nil doc or an empty (post-filter) batch is a no-op: doc is returned
// unchanged and applied is false.
func Apply(doc []byte, ops []json.RawMessage, filter Filter) (next []byte, applied bool, err error) {
	if filter != nil {
		ops = filter(ops)
	}
	if doc == nil || len(ops) == 0 {
		return doc, false, nil
	}

	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, false, errors.NewProtocolError("encode patch batch", err.Error())
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, false, errors.NewProtocolError("malformed patch batch", err.Error())
	}
	next, err = p.Apply(doc)
	if err != nil {
		return nil, false, errors.NewProtocolError("apply patch batch", err.Error())
	}
	return next, true, nil
}
