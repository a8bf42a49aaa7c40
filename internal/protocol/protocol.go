// Package protocol implements the wire envelope (spec component C6): the
// tagged-union ClientMessage/ServerMessage/FileOperation schema of spec §6,
// serialized as JSON (chosen here over the binary codec option for
// debuggability — a deployment picks one encoding and sticks to it, per
// spec). Every variant is a distinct Go type carrying only the fields
// spec §6 names; ids are opaque strings on the wire.
//
// This package only encodes and decodes messages. It has no knowledge of
// transport framing (internal/transport), broker state (internal/broker),
// or how a decoded FolderOperation's inner FileOperation gets applied to a
// folder — FileOperation.ApplyTo is the one exception, since the mapping
// from wire shape to internal/folder.Operation is itself part of the
// schema and changes in lockstep with it.
package protocol

import "errors"

// ErrUnknownType is returned by the Decode* functions when an envelope
// names a "type" this version of the schema does not recognize.
var ErrUnknownType = errors.New("protocol: unknown message type")
