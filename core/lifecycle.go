package core

import "sync/atomic"

// Status is the lifecycle state of an AsyncTask.
type Status int32

const (
	// StatusPending: created, not yet executed
	StatusPending Status = iota

	// StatusRunning: submitted for execution
	StatusRunning

	// StatusFinished: the terminal callback (OnPostExecute or OnCancelled) has run
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// lifecycle packs the task status and its flags into one atomic word so every
// transition is a single CAS.
//
//	bits 0-1: Status
//	bit 2:    cancelled
//	bit 3:    invoked (DoInBackground has started)
//	bit 4:    result posted
type lifecycle struct {
	word atomic.Uint32
}

const (
	statusMask       uint32 = 0x3
	flagCancelled    uint32 = 1 << 2
	flagInvoked      uint32 = 1 << 3
	flagResultPosted uint32 = 1 << 4
)

func (l *lifecycle) status() Status {
	return Status(l.word.Load() & statusMask)
}

func (l *lifecycle) isCancelled() bool {
	return l.word.Load()&flagCancelled != 0
}

func (l *lifecycle) isInvoked() bool {
	return l.word.Load()&flagInvoked != 0
}

// tryStart moves Pending to Running. On failure it returns the status that
// prevented the transition. A cancelled task never starts and reports
// Finished, since its OnCancelled is already on its way.
func (l *lifecycle) tryStart() (Status, bool) {
	for {
		old := l.word.Load()
		st := Status(old & statusMask)
		if st != StatusPending {
			return st, false
		}
		if old&flagCancelled != 0 {
			return StatusFinished, false
		}
		if l.word.CompareAndSwap(old, (old&^statusMask)|uint32(StatusRunning)) {
			return StatusPending, true
		}
	}
}

// finish moves the task to Finished from any state.
func (l *lifecycle) finish() {
	for {
		old := l.word.Load()
		if Status(old&statusMask) == StatusFinished {
			return
		}
		if l.word.CompareAndSwap(old, (old&^statusMask)|uint32(StatusFinished)) {
			return
		}
	}
}

// markCancelled sets the cancelled flag and reports whether this call set it.
func (l *lifecycle) markCancelled() bool {
	return l.setFlag(flagCancelled)
}

func (l *lifecycle) markInvoked() bool {
	return l.setFlag(flagInvoked)
}

// markResultPosted guards the single Result notification of a task.
func (l *lifecycle) markResultPosted() bool {
	return l.setFlag(flagResultPosted)
}

func (l *lifecycle) setFlag(flag uint32) bool {
	for {
		old := l.word.Load()
		if old&flag != 0 {
			return false
		}
		if l.word.CompareAndSwap(old, old|flag) {
			return true
		}
	}
}
