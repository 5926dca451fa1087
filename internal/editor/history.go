package editor

import "clipy/host/internal/model"

const historyLimit = 50

// history holds deep-cloned project snapshots. push records the state
// before a mutation and clears the redo stack; the cap drops the oldest
// snapshot.
type history struct {
	undos []model.Project
	redos []model.Project
}

func newHistory() *history {
	return &history{}
}

func (h *history) push(snapshot model.Project) {
	h.undos = append(h.undos, snapshot.Clone())
	if len(h.undos) > historyLimit {
		h.undos = h.undos[1:]
	}
	h.redos = h.redos[:0]
}

// undo pops the latest snapshot, parking the current state for redo.
func (h *history) undo(current model.Project) (model.Project, bool) {
	if len(h.undos) == 0 {
		return model.Project{}, false
	}
	last := h.undos[len(h.undos)-1]
	h.undos = h.undos[:len(h.undos)-1]
	h.redos = append(h.redos, current.Clone())
	return last, true
}

func (h *history) redo(current model.Project) (model.Project, bool) {
	if len(h.redos) == 0 {
		return model.Project{}, false
	}
	last := h.redos[len(h.redos)-1]
	h.redos = h.redos[:len(h.redos)-1]
	h.undos = append(h.undos, current.Clone())
	return last, true
}

func (h *history) depth() (undos, redos int) {
	return len(h.undos), len(h.redos)
}
