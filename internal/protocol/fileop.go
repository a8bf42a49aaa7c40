package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Bechma/backup-sync/internal/filemeta"
	"github.com/Bechma/backup-sync/internal/folder"
	"github.com/Bechma/backup-sync/internal/relpath"
	"github.com/Bechma/backup-sync/internal/rsyncdelta"
	"github.com/Bechma/backup-sync/pkg/contenthash"
)

// FileOperation is the sealed union of spec §6's
// "Delete | CreateDir | Rename | WriteFile | ChunkedTransfer(...) | DeltaSync(...)".
// ApplyTo dispatches the variant against a folder: the four non-chunked
// kinds and DeltaSync go through folder.Operation via f.Apply; a
// ChunkedTransfer goes straight to the matching Start/Chunk/End/Abort
// method, since it is a multi-message sub-protocol rather than a single
// atomic Operation (internal/folder's own doc comment on Operation).
type FileOperation interface {
	Kind() string
	ApplyTo(f *folder.Folder) error
}

// DeleteOp mirrors folder.DeleteOp on the wire.
type DeleteOp struct {
	Path string `json:"path"`
}

func (DeleteOp) Kind() string { return "delete" }

func (op DeleteOp) ApplyTo(f *folder.Folder) error {
	rp, err := relpath.New(op.Path)
	if err != nil {
		return fmt.Errorf("protocol: delete: %w", err)
	}

	return f.Apply(folder.DeleteOp{Path: rp})
}

// CreateDirOp mirrors folder.CreateDirOp on the wire.
type CreateDirOp struct {
	Path string `json:"path"`
}

func (CreateDirOp) Kind() string { return "create_dir" }

func (op CreateDirOp) ApplyTo(f *folder.Folder) error {
	rp, err := relpath.New(op.Path)
	if err != nil {
		return fmt.Errorf("protocol: create_dir: %w", err)
	}

	return f.Apply(folder.CreateDirOp{Path: rp})
}

// RenameOp mirrors folder.RenameOp on the wire.
type RenameOp struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (RenameOp) Kind() string { return "rename" }

func (op RenameOp) ApplyTo(f *folder.Folder) error {
	from, err := relpath.New(op.From)
	if err != nil {
		return fmt.Errorf("protocol: rename: from: %w", err)
	}

	to, err := relpath.New(op.To)
	if err != nil {
		return fmt.Errorf("protocol: rename: to: %w", err)
	}

	return f.Apply(folder.RenameOp{From: from, To: to})
}

// WriteFileOp mirrors folder.WriteFileOp on the wire. Content travels
// inline; large files are expected to go through ChunkedTransferOp
// instead (spec §6's temp-directory note applies only to the latter).
type WriteFileOp struct {
	Path     string             `json:"path"`
	Content  []byte             `json:"content"`
	Metadata filemeta.Metadata  `json:"metadata"`
	Hash     contenthash.Digest `json:"hash"`
}

func (WriteFileOp) Kind() string { return "write_file" }

func (op WriteFileOp) ApplyTo(f *folder.Folder) error {
	rp, err := relpath.New(op.Path)
	if err != nil {
		return fmt.Errorf("protocol: write_file: %w", err)
	}

	return f.Apply(folder.WriteFileOp{
		Path:     rp,
		Content:  op.Content,
		Metadata: op.Metadata,
		Hash:     op.Hash,
	})
}

// wireInstruction mirrors one rsyncdelta.Instruction on the wire. Kind is
// a short string rather than rsyncdelta's int enum, to stay
// language-neutral.
type wireInstruction struct {
	Kind    string `json:"kind"`
	Offset  uint64 `json:"offset,omitempty"`
	Length  uint64 `json:"length,omitempty"`
	Literal []byte `json:"literal,omitempty"`
}

func toWireInstruction(in rsyncdelta.Instruction) wireInstruction {
	if in.Kind == rsyncdelta.KindCopy {
		return wireInstruction{Kind: "copy", Offset: in.Offset, Length: in.Length}
	}

	return wireInstruction{Kind: "literal", Literal: in.Literal}
}

func fromWireInstruction(w wireInstruction) (rsyncdelta.Instruction, error) {
	switch w.Kind {
	case "copy":
		return rsyncdelta.Instruction{Kind: rsyncdelta.KindCopy, Offset: w.Offset, Length: w.Length}, nil
	case "literal":
		return rsyncdelta.Instruction{Kind: rsyncdelta.KindLiteral, Literal: w.Literal}, nil
	default:
		return rsyncdelta.Instruction{}, fmt.Errorf("%w: delta instruction kind %q", ErrUnknownType, w.Kind)
	}
}

// DeltaSyncOp mirrors folder.DeltaSyncOp on the wire.
type DeltaSyncOp struct {
	Path         string             `json:"path"`
	Instructions []wireInstruction  `json:"instructions"`
	NewHash      contenthash.Digest `json:"new_hash"`
	Metadata     filemeta.Metadata  `json:"metadata"`
}

func (DeltaSyncOp) Kind() string { return "delta_sync" }

// NewDeltaSyncOp builds the wire shape from the engine's own instruction
// slice, used by the side producing the operation (the origin agent).
func NewDeltaSyncOp(path string, instructions []rsyncdelta.Instruction, newHash contenthash.Digest, metadata filemeta.Metadata) DeltaSyncOp {
	wire := make([]wireInstruction, len(instructions))
	for i, in := range instructions {
		wire[i] = toWireInstruction(in)
	}

	return DeltaSyncOp{Path: path, Instructions: wire, NewHash: newHash, Metadata: metadata}
}

func (op DeltaSyncOp) ApplyTo(f *folder.Folder) error {
	rp, err := relpath.New(op.Path)
	if err != nil {
		return fmt.Errorf("protocol: delta_sync: %w", err)
	}

	instructions := make([]rsyncdelta.Instruction, len(op.Instructions))

	for i, w := range op.Instructions {
		in, err := fromWireInstruction(w)
		if err != nil {
			return fmt.Errorf("protocol: delta_sync: instruction %d: %w", i, err)
		}

		instructions[i] = in
	}

	return f.Apply(folder.DeltaSyncOp{
		Path:         rp,
		Instructions: instructions,
		NewHash:      op.NewHash,
		Metadata:     op.Metadata,
	})
}

// ChunkedTransferPhase is the sealed sub-union of a ChunkedTransferOp:
// Start, Chunk, End, or Abort, matching internal/folder's four-method
// state machine one-for-one.
type ChunkedTransferPhase interface {
	phaseKind() string
}

type ChunkedTransferStart struct {
	TransferID uint64 `json:"transfer_id"`
	TotalSize  uint64 `json:"total_size"`
	ChunkSize  uint64 `json:"chunk_size"`
}

func (ChunkedTransferStart) phaseKind() string { return "start" }

type ChunkedTransferChunk struct {
	TransferID uint64 `json:"transfer_id"`
	Index      uint64 `json:"index"`
	Data       []byte `json:"data"`
}

func (ChunkedTransferChunk) phaseKind() string { return "chunk" }

type ChunkedTransferEnd struct {
	TransferID uint64             `json:"transfer_id"`
	Path       string             `json:"path"`
	Hash       contenthash.Digest `json:"hash"`
	Metadata   filemeta.Metadata  `json:"metadata"`
}

func (ChunkedTransferEnd) phaseKind() string { return "end" }

type ChunkedTransferAbort struct {
	TransferID uint64 `json:"transfer_id"`
	Reason     string `json:"reason"`
}

func (ChunkedTransferAbort) phaseKind() string { return "abort" }

// ChunkedTransferOp carries exactly one phase.
type ChunkedTransferOp struct {
	Phase ChunkedTransferPhase
}

func (ChunkedTransferOp) Kind() string { return "chunked_transfer" }

func (op ChunkedTransferOp) ApplyTo(f *folder.Folder) error {
	switch p := op.Phase.(type) {
	case ChunkedTransferStart:
		return f.Start(p.TransferID, p.TotalSize, p.ChunkSize)

	case ChunkedTransferChunk:
		return f.Chunk(p.TransferID, p.Index, p.Data)

	case ChunkedTransferEnd:
		rp, err := relpath.New(p.Path)
		if err != nil {
			return fmt.Errorf("protocol: chunked_transfer end: %w", err)
		}

		return f.End(p.TransferID, rp, p.Hash, p.Metadata)

	case ChunkedTransferAbort:
		return f.Abort(p.TransferID, p.Reason)

	default:
		return fmt.Errorf("%w: chunked transfer phase", ErrUnknownType)
	}
}

type wireChunkedTransfer struct {
	Phase string          `json:"phase"`
	Data  json.RawMessage `json:"data"`
}

// MarshalJSON flattens the Phase union into {"phase": ..., "data": ...}.
func (op ChunkedTransferOp) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(op.Phase)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal chunked transfer phase: %w", err)
	}

	return json.Marshal(wireChunkedTransfer{Phase: op.Phase.phaseKind(), Data: data})
}

// UnmarshalJSON reconstructs the Phase union from its tag.
func (op *ChunkedTransferOp) UnmarshalJSON(raw []byte) error {
	var w wireChunkedTransfer
	if err := json.Unmarshal(raw, &w); err != nil {
		return fmt.Errorf("protocol: unmarshal chunked transfer: %w", err)
	}

	var phase ChunkedTransferPhase

	switch w.Phase {
	case "start":
		var p ChunkedTransferStart
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return fmt.Errorf("protocol: unmarshal chunked transfer start: %w", err)
		}

		phase = p

	case "chunk":
		var p ChunkedTransferChunk
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return fmt.Errorf("protocol: unmarshal chunked transfer chunk: %w", err)
		}

		phase = p

	case "end":
		var p ChunkedTransferEnd
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return fmt.Errorf("protocol: unmarshal chunked transfer end: %w", err)
		}

		phase = p

	case "abort":
		var p ChunkedTransferAbort
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return fmt.Errorf("protocol: unmarshal chunked transfer abort: %w", err)
		}

		phase = p

	default:
		return fmt.Errorf("%w: chunked transfer phase %q", ErrUnknownType, w.Phase)
	}

	op.Phase = phase

	return nil
}

type wireFileOperation struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeFileOperation flattens a FileOperation into its tagged wire shape.
func EncodeFileOperation(op FileOperation) ([]byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal file operation: %w", err)
	}

	return json.Marshal(wireFileOperation{Type: op.Kind(), Data: data})
}

// DecodeFileOperation reconstructs the concrete FileOperation named by the
// envelope's type tag.
func DecodeFileOperation(raw []byte) (FileOperation, error) {
	var w wireFileOperation
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal file operation envelope: %w", err)
	}

	switch w.Type {
	case "delete":
		var op DeleteOp
		if err := json.Unmarshal(w.Data, &op); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal delete: %w", err)
		}

		return op, nil

	case "create_dir":
		var op CreateDirOp
		if err := json.Unmarshal(w.Data, &op); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal create_dir: %w", err)
		}

		return op, nil

	case "rename":
		var op RenameOp
		if err := json.Unmarshal(w.Data, &op); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal rename: %w", err)
		}

		return op, nil

	case "write_file":
		var op WriteFileOp
		if err := json.Unmarshal(w.Data, &op); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal write_file: %w", err)
		}

		return op, nil

	case "delta_sync":
		var op DeltaSyncOp
		if err := json.Unmarshal(w.Data, &op); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal delta_sync: %w", err)
		}

		return op, nil

	case "chunked_transfer":
		var op ChunkedTransferOp
		if err := json.Unmarshal(w.Data, &op); err != nil {
			return nil, fmt.Errorf("protocol: unmarshal chunked_transfer: %w", err)
		}

		return op, nil

	default:
		return nil, fmt.Errorf("%w: file operation %q", ErrUnknownType, w.Type)
	}
}
