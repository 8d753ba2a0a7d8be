package estimator

import (
	"sort"
	"time"

	"go.viam.com/swerve/spatialmath"
)

type snapshot struct {
	t    time.Time
	pose spatialmath.Pose2D
}

// history is a time-ordered record of recent fused poses, used to evaluate a delayed measurement
// against where the robot was when the measurement was taken.
type history struct {
	window  time.Duration
	entries []snapshot
}

func newHistory(window time.Duration) *history {
	return &history{window: window}
}

func (h *history) clear() {
	h.entries = h.entries[:0]
}

// push appends a snapshot and discards those that have fallen out of the window. Snapshots must be
// pushed in increasing time order; an out-of-order one replaces the tail.
func (h *history) push(t time.Time, pose spatialmath.Pose2D) {
	for len(h.entries) > 0 && !h.entries[len(h.entries)-1].t.Before(t) {
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, snapshot{t: t, pose: pose})

	cutoff := t.Add(-h.window)
	drop := sort.Search(len(h.entries), func(i int) bool { return !h.entries[i].t.Before(cutoff) })
	if drop > 0 {
		h.entries = append(h.entries[:0], h.entries[drop:]...)
	}
}

// sample returns the pose at t, interpolating between neighbors. Times after the newest snapshot
// return the newest pose. It reports false when t predates the record or the record is empty.
func (h *history) sample(t time.Time) (spatialmath.Pose2D, bool) {
	n := len(h.entries)
	if n == 0 || t.Before(h.entries[0].t) {
		return spatialmath.Pose2D{}, false
	}
	// first snapshot strictly after t
	i := sort.Search(n, func(i int) bool { return h.entries[i].t.After(t) })
	if i == n {
		return h.entries[n-1].pose, true
	}
	before, after := h.entries[i-1], h.entries[i]
	frac := float64(t.Sub(before.t)) / float64(after.t.Sub(before.t))
	return spatialmath.Interpolate(before.pose, after.pose, frac), true
}

// rebase rewrites every snapshot at or after t as if the robot had been at corrected instead of was
// at time t, keeping the motion recorded since then. When t is past the newest snapshot, the newest
// one is the pose that was corrected.
func (h *history) rebase(t time.Time, was, corrected spatialmath.Pose2D) {
	n := len(h.entries)
	if n > 0 && h.entries[n-1].t.Before(t) {
		h.entries[n-1].pose = corrected.Compose(h.entries[n-1].pose.RelativeTo(was))
		return
	}
	for i := range h.entries {
		if !h.entries[i].t.Before(t) {
			h.entries[i].pose = corrected.Compose(h.entries[i].pose.RelativeTo(was))
		}
	}
}

func (h *history) len() int {
	return len(h.entries)
}
