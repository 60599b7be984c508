package storage

// Settings is the configuration surface the storage core recognises
// (spec.md section 6). Parsing a connection string or a settings file
// into this shape is an outer-shell concern, not the core's - see the
// root-level ConnectionConfig for that convenience.
type Settings struct {
	// Filename is the path to the data file; the log file is the same
	// path with "-log" appended.
	Filename string
	// ReadOnly opens both handles read-only and rejects every
	// mutating operation (NewPage, WriteAsync, Write, SetLength,
	// MarkAsInvalidState).
	ReadOnly bool
	// Collation is stored in the header pragma on initial creation and
	// ignored thereafter.
	Collation uint8
	// AutoRebuild is read by the engine, not the core, to decide whether
	// to invoke the external recovery collaborator when the invalid-state
	// flag is set. The core only carries the value through.
	AutoRebuild bool
}

// LogPath returns the path of the log file alongside the data file.
func (s Settings) LogPath() string {
	return s.Filename + "-log"
}
