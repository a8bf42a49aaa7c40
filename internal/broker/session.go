package broker

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Bechma/backup-sync/internal/protocol"
	"github.com/Bechma/backup-sync/internal/transport"
)

// broadcastFanOutWorkers bounds how many of a Broadcast's targets are sent
// to concurrently (spec.md's "pooled and bounded" parallel work, applied
// here to the broker's fan-out instead of agent-side per-file work).
const broadcastFanOutWorkers = 8

// Registry tracks the live transport.Conn behind each ConnID so a
// Dispatch Broadcast can be fanned out to every other connection backing
// up a folder. It performs exactly the transport I/O Dispatch defers
// (spec §5: "release locks before transport I/O") and never holds
// State's lock while doing so.
type Registry struct {
	mu    sync.Mutex
	conns map[ConnID]transport.Conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]transport.Conn)}
}

// Register associates id with conn for later fan-out.
func (r *Registry) Register(id ConnID, conn transport.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id] = conn
}

// Unregister drops id, a no-op if it was never registered.
func (r *Registry) Unregister(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, id)
}

func (r *Registry) send(ctx context.Context, id ConnID, msg protocol.ServerMessage) error {
	r.mu.Lock()
	conn, ok := r.conns[id]
	r.mu.Unlock()

	if !ok {
		return nil
	}

	payload, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		return err
	}

	return conn.Send(ctx, payload)
}

// HandleConnection drives one connection's receive/dispatch/reply loop
// until Receive errors (the transport closed) or ctx is canceled. It owns
// the transport I/O that State.Dispatch computes but never performs
// itself: the direct Reply, and fanning a Broadcast out to the other
// connections ConnectionsForFolder names, and delivering a FullSyncTrigger
// to the origin connection as a protocol.FullSyncRequested message
// (spec-supplemented feature C.4).
func HandleConnection(ctx context.Context, id ConnID, conn transport.Conn, state *State, registry *Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	registry.Register(id, conn)
	defer registry.Unregister(id)
	defer state.Disconnect(id)

	for {
		payload, err := conn.Receive(ctx)
		if err != nil {
			logger.Debug("connection closed", "conn", id, "error", err)

			return
		}

		msg, err := protocol.DecodeClientMessage(payload)
		if err != nil {
			logger.Warn("dropping undecodable message", "conn", id, "error", err)

			continue
		}

		result, dispatchErr := state.Dispatch(id, msg)
		if dispatchErr != nil {
			logger.Debug("dispatch returned an error result", "conn", id, "error", dispatchErr)
		}

		if result.Reply != nil {
			if err := registry.send(ctx, id, result.Reply); err != nil {
				logger.Warn("failed to send reply", "conn", id, "error", err)

				return
			}
		}

		if result.Broadcast != nil {
			b := result.Broadcast
			targets := state.ConnectionsForFolder(b.FolderID, b.ExcludeComputer)

			group, gctx := errgroup.WithContext(ctx)
			group.SetLimit(broadcastFanOutWorkers)

			for _, target := range targets {
				target := target

				group.Go(func() error {
					if err := registry.send(gctx, target, b.Message); err != nil {
						logger.Warn("failed to fan out broadcast", "conn", target, "error", err)
					}

					return nil
				})
			}

			group.Wait() //nolint:errcheck // fan-out errors are logged per-target above, never fatal to the loop
		}

		if t := result.FullSyncTrigger; t != nil {
			msg := protocol.FullSyncRequested{FolderID: t.FolderID, RequestingComputer: t.RequestingComputer}
			if err := registry.send(ctx, t.OriginConn, msg); err != nil {
				logger.Warn("failed to deliver full sync request to origin", "conn", t.OriginConn, "error", err)
			}
		}
	}
}
