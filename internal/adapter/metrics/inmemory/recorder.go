package inmemory

import (
	"sync"
)

type Snapshot struct {
	CommandTotal    uint64            `json:"command_total"`
	CommandSuccess  uint64            `json:"command_success"`
	CommandRejected uint64            `json:"command_rejected"`
	CommandFailure  uint64            `json:"command_failure"`
	ByCommand       map[string]uint64 `json:"by_command"`
	ByRejectCode    map[string]uint64 `json:"by_reject_code"`
}

// Recorder counts command outcomes for the kpi endpoint.
type Recorder struct {
	mu        sync.Mutex
	success   uint64
	rejected  uint64
	failure   uint64
	byCommand map[string]uint64
	byCode    map[string]uint64
}

func NewRecorder() *Recorder {
	return &Recorder{
		byCommand: map[string]uint64{},
		byCode:    map[string]uint64{},
	}
}

func (r *Recorder) RecordSuccess(command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success++
	r.byCommand[command]++
}

func (r *Recorder) RecordRejected(command, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
	r.byCommand[command]++
	r.byCode[code]++
}

func (r *Recorder) RecordFailure(command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure++
	r.byCommand[command]++
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		CommandSuccess:  r.success,
		CommandRejected: r.rejected,
		CommandFailure:  r.failure,
		CommandTotal:    r.success + r.rejected + r.failure,
		ByCommand:       make(map[string]uint64, len(r.byCommand)),
		ByRejectCode:    make(map[string]uint64, len(r.byCode)),
	}
	for k, v := range r.byCommand {
		out.ByCommand[k] = v
	}
	for k, v := range r.byCode {
		out.ByRejectCode[k] = v
	}
	return out
}

func (r *Recorder) SnapshotAny() any {
	return r.Snapshot()
}
