package sensor

import "sync/atomic"

// FrameSlot is the shared single-value holder for the latest camera frame.
//
// Ownership:
//   - Exactly one writer: the camera acquisition worker (Store).
//   - Exactly one reader: the display loop (Snapshot).
//
// No lock is taken. The pointer swap is atomic, so the reader observes either
// the previous or the current frame, never a torn one. Frames are immutable
// once stored; Snapshot hands the reader a private copy.
type FrameSlot struct {
	frame atomic.Pointer[Frame]

	stored      atomic.Uint64
	overwritten atomic.Uint64 // frames replaced before any Snapshot saw them
	lastSeenSeq atomic.Uint64
}

// SlotStats is a snapshot of slot counters.
type SlotStats struct {
	// Stored counts frames written by the camera worker.
	Stored uint64 `json:"stored"`

	// Overwritten counts frames replaced before the display loop read them.
	// Expected to be non-zero whenever the camera outruns the display rate.
	Overwritten uint64 `json:"overwritten"`

	// LastSeq is the sequence number of the newest stored frame.
	LastSeq uint64 `json:"last_seq"`
}

// NewFrameSlot returns an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Store publishes a new frame, replacing the previous one.
func (s *FrameSlot) Store(f *Frame) {
	prev := s.frame.Swap(f)
	s.stored.Add(1)

	if prev != nil && prev.Seq > s.lastSeenSeq.Load() {
		s.overwritten.Add(1)
	}
}

// Load returns the current frame without copying, or nil if none was stored.
// The result MUST NOT be modified.
func (s *FrameSlot) Load() *Frame {
	return s.frame.Load()
}

// Snapshot returns a private copy of the current frame, or nil if the camera
// has not produced a frame yet.
func (s *FrameSlot) Snapshot() *Frame {
	f := s.frame.Load()
	if f == nil {
		return nil
	}
	s.lastSeenSeq.Store(f.Seq)
	return f.Clone()
}

// Stats returns slot counters.
func (s *FrameSlot) Stats() SlotStats {
	var lastSeq uint64
	if f := s.frame.Load(); f != nil {
		lastSeq = f.Seq
	}
	return SlotStats{
		Stored:      s.stored.Load(),
		Overwritten: s.overwritten.Load(),
		LastSeq:     lastSeq,
	}
}
