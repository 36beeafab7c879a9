package model

import (
	"time"

	"zeitdieb.dev/pkg/zeitdieb/pkg/trace"
)

// ProfileVersion is the schema version written by this build.
const ProfileVersion uint16 = 1

// Profile is a finished run persisted for later viewing.
type Profile struct {
	Version   uint16    `msgpack:"version"`
	CreatedAt time.Time `msgpack:"created_at"`
	// Root is the directory of the profiled module.
	Root string `msgpack:"root"`
	// Command is the package and arguments that were run.
	Command  []string       `msgpack:"command"`
	Targets  []string       `msgpack:"targets"`
	Snapshot trace.Snapshot `msgpack:"snapshot"`
	// Sources holds the original lines of every file in Snapshot, keyed by
	// module-relative path, so views do not depend on the working tree.
	Sources map[string][]string `msgpack:"sources"`
	// Hashes holds the SHA-256 of every file in Sources when it was profiled.
	Hashes map[string]string `msgpack:"hashes"`
	// ExitCode of the profiled process.
	ExitCode int `msgpack:"exit_code"`
}
