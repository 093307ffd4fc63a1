package node

// timeDue compares against a wrapping millisecond clock; the signed
// difference keeps it correct across the uint32 rollover.
func timeDue(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// scheduleNext advances a periodic deadline by its interval, resyncing to
// now if the loop fell more than one interval behind. Periodic work drifts
// by at most one tick instead of accumulating lag.
func scheduleNext(deadline *uint32, intervalMS, now uint32) {
	if intervalMS == 0 {
		*deadline = now + 1
		return
	}
	*deadline += intervalMS
	if int32(now-*deadline) > int32(intervalMS) {
		*deadline = now + intervalMS
	}
}
