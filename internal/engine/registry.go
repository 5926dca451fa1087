package engine

import (
	"os/exec"
	"sync"
)

// ProcessRegistry tracks live engine processes by download or export id so
// cancel requests can kill them. Registration is best-effort; an id may
// have no process when cancel arrives between spawn and register.
type ProcessRegistry struct {
	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{procs: map[string]*exec.Cmd{}}
}

func (r *ProcessRegistry) Register(id string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[id] = cmd
}

func (r *ProcessRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, id)
}

// Kill terminates the process registered under id, if any.
func (r *ProcessRegistry) Kill(id string) bool {
	r.mu.Lock()
	cmd := r.procs[id]
	delete(r.procs, id)
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return cmd.Process.Kill() == nil
}

func (r *ProcessRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}
