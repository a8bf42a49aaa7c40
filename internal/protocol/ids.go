package protocol

// UserID, ComputerID and FolderID are opaque strings on the wire (spec
// §6: "Ids are strings; opaque to wire."). They wrap github.com/google/uuid
// values on both the agent and broker sides, but the protocol package
// itself never parses them — only the broker/registry layers that mint
// and look them up need the concrete uuid.UUID type.
type UserID string

type ComputerID string

type FolderID string
