package broker

import "github.com/Bechma/backup-sync/internal/protocol"

// projectComputer builds the wire-facing shape of a computer record.
// Callers must hold at least a read lock on State.
func projectComputer(c *computerRecord) protocol.Computer {
	return protocol.Computer{ID: c.ID, Name: c.Name, Online: c.Online}
}

func projectFolder(f *syncFolderRecord) protocol.SyncFolder {
	backups := make([]protocol.ComputerID, len(f.BackupComputers))
	copy(backups, f.BackupComputers)

	return protocol.SyncFolder{
		ID:                f.ID,
		Name:              f.Name,
		OriginComputer:    f.OriginComputer,
		BackupComputers:   backups,
		IsSynced:          f.IsSynced,
		PendingOperations: f.PendingOperations,
	}
}

func projectUser(u *userRecord) protocol.User {
	computers := make([]protocol.Computer, 0, len(u.Computers))
	for _, c := range u.Computers {
		computers = append(computers, projectComputer(c))
	}

	folders := make([]protocol.SyncFolder, 0, len(u.Folders))
	for _, f := range u.Folders {
		folders = append(folders, projectFolder(f))
	}

	return protocol.User{ID: u.ID, Name: u.Name, Computers: computers, Folders: folders}
}
