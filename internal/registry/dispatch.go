package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Bechma/backup-sync/internal/folder"
)

// ErrReserved is returned for InitRequest. The schema declares
// FolderOperation::Init but its intent is unspecified upstream; this
// registry treats it as reserved rather than guessing at bootstrap
// semantics (see DESIGN.md).
var ErrReserved = errors.New("registry: init is reserved and unimplemented")

// Request is one of the three folder-addressed requests the registry
// dispatches (spec §4.4): InitRequest, OperationRequest, RequestSyncRequest.
type Request interface {
	folderID() uuid.UUID
}

// InitRequest corresponds to FolderOperation::Init. Reserved; Dispatch
// always returns ErrReserved for it.
type InitRequest struct {
	FolderID uuid.UUID
}

func (r InitRequest) folderID() uuid.UUID { return r.FolderID }

// OperationRequest forwards a single folder.Operation to the named
// folder, tagged with the broker-assigned operation id so the caller can
// correlate the eventual Ack/OperationComplete.
type OperationRequest struct {
	FolderID    uuid.UUID
	Operation   folder.Operation
	OperationID uint64
}

func (r OperationRequest) folderID() uuid.UUID { return r.FolderID }

// RequestSyncRequest asks for a fresh manifest of the named folder.
type RequestSyncRequest struct {
	FolderID uuid.UUID
}

func (r RequestSyncRequest) folderID() uuid.UUID { return r.FolderID }

// Response is what Dispatch returns for a successfully handled request.
// Exactly one of the fields is meaningful, depending on which Request
// variant was dispatched: OperationID for OperationRequest, Manifest for
// RequestSyncRequest. Neither is set for InitRequest (which always
// errors).
type Response struct {
	OperationID uint64
	Manifest    *folder.SyncManifest
}

// Dispatch routes req to its folder and executes it. Unknown folder ids
// yield ErrNotFound regardless of request kind.
func (r *Registry) Dispatch(req Request) (Response, error) {
	f, err := r.Get(req.folderID())
	if err != nil {
		return Response{}, err
	}

	switch v := req.(type) {
	case InitRequest:
		return Response{}, fmt.Errorf("registry: dispatch init %s: %w", v.FolderID, ErrReserved)

	case OperationRequest:
		if err := f.Apply(v.Operation); err != nil {
			return Response{}, fmt.Errorf("registry: dispatch operation %d on folder %s: %w", v.OperationID, v.FolderID, err)
		}

		return Response{OperationID: v.OperationID}, nil

	case RequestSyncRequest:
		manifest, err := f.Manifest()
		if err != nil {
			return Response{}, fmt.Errorf("registry: dispatch request_sync on folder %s: %w", v.FolderID, err)
		}

		return Response{Manifest: manifest}, nil

	default:
		return Response{}, fmt.Errorf("registry: dispatch: unknown request type %T", req)
	}
}
