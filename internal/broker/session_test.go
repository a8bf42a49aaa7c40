package broker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bechma/backup-sync/internal/protocol"
)

// fakeConn is an in-memory transport.Conn: Receive drains a channel of
// preloaded inbound payloads (closed once preloaded, so Receive returns
// io.EOF after the last one), Send appends to an observable slice.
type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	sent    [][]byte
	closed  bool
}

func newFakeConn(inbound ...[]byte) *fakeConn {
	ch := make(chan []byte, len(inbound))
	for _, m := range inbound {
		ch <- m
	}

	close(ch)

	return &fakeConn{inbound: ch}
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case m, ok := <-c.inbound:
		if !ok {
			return nil, io.EOF
		}

		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)

	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	return nil
}

func (c *fakeConn) sentMessages(t *testing.T) []protocol.ServerMessage {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]protocol.ServerMessage, 0, len(c.sent))

	for _, payload := range c.sent {
		msg, err := protocol.DecodeServerMessage(payload)
		require.NoError(t, err)
		out = append(out, msg)
	}

	return out
}

func encodeClient(t *testing.T, msg protocol.ClientMessage) []byte {
	t.Helper()

	payload, err := protocol.EncodeClientMessage(msg)
	require.NoError(t, err)

	return payload
}

func TestHandleConnection_AuthenticateRepliesAndStopsOnClose(t *testing.T) {
	s := New(nil)
	userID, computerID := s.SeedUser("alice", "laptop")

	conn := newFakeConn(encodeClient(t, protocol.Authenticate{UserID: userID, ComputerID: computerID}))
	registry := NewRegistry()

	done := make(chan struct{})
	go func() {
		HandleConnection(context.Background(), ConnID("conn-1"), conn, s, registry, nil)
		close(done)
	}()

	// The fake conn's inbound channel closes itself once drained, so the
	// handler loop exits on its own without needing a cancel.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnection did not return after conn closed")
	}

	sent := conn.sentMessages(t)
	require.Len(t, sent, 1)
	authed, ok := sent[0].(protocol.Authenticated)
	require.True(t, ok)
	assert.Equal(t, userID, authed.User.ID)
}

func TestHandleConnection_BroadcastsFolderOperationToBackup(t *testing.T) {
	s := New(nil)
	userID, originID := s.SeedUser("alice", "origin")

	s.mu.Lock()
	backupID := protocol.ComputerID("backup-1")
	s.users[userID].Computers[backupID] = &computerRecord{ID: backupID, Name: "backup"}
	s.mu.Unlock()

	registry := NewRegistry()

	originConn := newFakeConn(
		encodeClient(t, protocol.Authenticate{UserID: userID, ComputerID: originID}),
		encodeClient(t, protocol.CreateSyncFolder{Name: "docs"}),
	)
	runToCompletion(t, ConnID("origin-conn"), originConn, s, registry)

	sent := originConn.sentMessages(t)
	require.Len(t, sent, 2)
	created, ok := sent[1].(protocol.SyncFolderCreated)
	require.True(t, ok)
	folderID := created.Folder.ID

	backupConn := newFakeConn(
		encodeClient(t, protocol.Authenticate{UserID: userID, ComputerID: backupID}),
		encodeClient(t, protocol.JoinSyncFolder{FolderID: folderID}),
	)
	runToCompletion(t, ConnID("backup-conn"), backupConn, s, registry)

	// HandleConnection unregisters a connection and disconnects it from
	// State once its transport closes; re-register and re-authenticate
	// both so the upcoming op's broadcast fan-out still has somewhere to
	// deliver.
	registry.Register(ConnID("origin-conn"), originConn)
	registry.Register(ConnID("backup-conn"), backupConn)
	authenticated(t, s, ConnID("origin-conn"), userID, originID)
	authenticated(t, s, ConnID("backup-conn"), userID, backupID)

	opConn := newFakeConn(encodeClient(t, protocol.FolderOperation{
		FolderID:  folderID,
		Operation: protocol.CreateDirOp{Path: "notes"},
	}))
	runToCompletion(t, ConnID("origin-conn"), opConn, s, registry)

	backupSent := backupConn.sentMessages(t)
	var gotBroadcast bool

	for _, msg := range backupSent {
		if _, ok := msg.(protocol.FolderOperationBroadcast); ok {
			gotBroadcast = true
		}
	}

	assert.True(t, gotBroadcast, "expected backup connection to receive a FolderOperationBroadcast")
}

// runToCompletion drives HandleConnection to completion, relying on
// fakeConn.Receive returning io.EOF once its preloaded messages drain.
func runToCompletion(t *testing.T, id ConnID, conn *fakeConn, s *State, registry *Registry) {
	t.Helper()

	done := make(chan struct{})

	go func() {
		HandleConnection(context.Background(), id, conn, s, registry, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("HandleConnection(%s) did not return", id)
	}
}

func TestHandleConnection_DeliversFullSyncRequestToOrigin(t *testing.T) {
	s := New(nil)
	userID, originID := s.SeedUser("alice", "origin")

	s.mu.Lock()
	backupID := protocol.ComputerID("backup-1")
	s.users[userID].Computers[backupID] = &computerRecord{ID: backupID, Name: "backup"}
	s.mu.Unlock()

	registry := NewRegistry()

	originConn := newFakeConn(
		encodeClient(t, protocol.Authenticate{UserID: userID, ComputerID: originID}),
		encodeClient(t, protocol.CreateSyncFolder{Name: "docs"}),
	)
	runToCompletion(t, ConnID("origin-conn"), originConn, s, registry)

	created, ok := originConn.sentMessages(t)[1].(protocol.SyncFolderCreated)
	require.True(t, ok)
	folderID := created.Folder.ID

	backupConn := newFakeConn(
		encodeClient(t, protocol.Authenticate{UserID: userID, ComputerID: backupID}),
		encodeClient(t, protocol.JoinSyncFolder{FolderID: folderID}),
	)
	runToCompletion(t, ConnID("backup-conn"), backupConn, s, registry)

	// HandleConnection unregisters and disconnects on exit; re-register
	// the origin and re-authenticate both so the upcoming RequestFullSync
	// is accepted and has a live origin connection to deliver to.
	registry.Register(ConnID("origin-conn"), originConn)
	authenticated(t, s, ConnID("origin-conn"), userID, originID)
	authenticated(t, s, ConnID("backup-conn"), userID, backupID)

	requestConn := newFakeConn(encodeClient(t, protocol.RequestFullSync{FolderID: folderID}))
	runToCompletion(t, ConnID("backup-conn"), requestConn, s, registry)

	var gotRequest protocol.FullSyncRequested
	var found bool

	for _, msg := range originConn.sentMessages(t) {
		if m, ok := msg.(protocol.FullSyncRequested); ok {
			gotRequest = m
			found = true
		}
	}

	require.True(t, found, "expected origin connection to receive a FullSyncRequested")
	assert.Equal(t, folderID, gotRequest.FolderID)
	assert.Equal(t, backupID, gotRequest.RequestingComputer)
}

func TestRegistry_UnregisteredSendIsNoOp(t *testing.T) {
	r := NewRegistry()
	err := r.send(context.Background(), ConnID("missing"), protocol.Welcome{})
	assert.NoError(t, err)
}
