package action

import "time"

// Action is how control is handed to hl-visor once preparation is done.
type Action int

const (
	Exit              Action = iota // 0：no hl-visor arguments, exit after provisioning
	ExecReplace                     // 1：replace this process with hl-visor
	SpawnAndSupervise               // 2：run hl-visor as a child next to background tasks
)

func (a Action) String() string {
	switch a {
	case ExecReplace:
		return "exec"
	case SpawnAndSupervise:
		return "spawn"
	default:
		return "exit"
	}
}

// Launch describes what the process should still do after provisioning.
type Launch struct {
	Args          []string
	PruneInterval time.Duration
	SnapshotAddr  string
}

// Background reports whether any task must outlive process replacement.
func (l Launch) Background() bool {
	return l.PruneInterval > 0 || l.SnapshotAddr != ""
}

// Decide picks the launch mode. Exec replaces the process image, so it is
// only used when nothing else has to keep running.
func Decide(l Launch) Action {
	switch {
	case len(l.Args) == 0:
		return Exit
	case l.Background():
		return SpawnAndSupervise
	default:
		return ExecReplace
	}
}
