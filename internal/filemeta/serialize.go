package filemeta

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireMetadata is the stable, language-neutral JSON shape for Metadata:
// file_type as a short enum string and timestamps as RFC-3339 with an
// explicit timezone (UTC, "Z" suffix) — never Unix epoch integers, so the
// wire format stays readable and survives language changes on either end.
type wireMetadata struct {
	FileType      FileType `json:"file_type"`
	Size          uint64   `json:"size"`
	Mode          uint32   `json:"mode"`
	ReadOnly      bool     `json:"readonly"`
	Hidden        bool     `json:"hidden"`
	ModTime       string   `json:"mtime"`
	ChangeTime    *string  `json:"ctime,omitempty"`
	SymlinkTarget *string  `json:"symlink_target,omitempty"`
}

// MarshalJSON implements json.Marshaler using the stable wire shape.
func (m Metadata) MarshalJSON() ([]byte, error) {
	w := wireMetadata{
		FileType:      m.FileType,
		Size:          m.Size,
		Mode:          m.Permissions.Mode & modeMask,
		ReadOnly:      m.Permissions.ReadOnly,
		Hidden:        m.Permissions.Hidden,
		ModTime:       m.ModTime.UTC().Format(time.RFC3339Nano),
		SymlinkTarget: m.SymlinkTarget,
	}

	if m.ChangeTime != nil {
		ct := m.ChangeTime.UTC().Format(time.RFC3339Nano)
		w.ChangeTime = &ct
	}

	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler using the stable wire shape.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var w wireMetadata
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("filemeta: unmarshal: %w", err)
	}

	modTime, err := time.Parse(time.RFC3339Nano, w.ModTime)
	if err != nil {
		return fmt.Errorf("filemeta: parse mtime %q: %w", w.ModTime, err)
	}

	out := Metadata{
		FileType: w.FileType,
		Size:     w.Size,
		Permissions: Permissions{
			Mode:     w.Mode & modeMask,
			ReadOnly: w.ReadOnly,
			Hidden:   w.Hidden,
		},
		ModTime:       modTime.UTC(),
		SymlinkTarget: w.SymlinkTarget,
	}

	if w.ChangeTime != nil {
		ct, err := time.Parse(time.RFC3339Nano, *w.ChangeTime)
		if err != nil {
			return fmt.Errorf("filemeta: parse ctime %q: %w", *w.ChangeTime, err)
		}

		ctUTC := ct.UTC()
		out.ChangeTime = &ctUTC
	}

	*m = out

	return nil
}
