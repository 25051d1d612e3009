package monitor

// MotionDetector compares consecutive frames box by box.
type MotionDetector struct {
	granularity int
	leniency    int
	previous    []int
}

func NewMotionDetector(granularity, leniency int) *MotionDetector {
	return &MotionDetector{granularity: granularity, leniency: leniency}
}

// Configure changes the grid and tolerance. A grid change drops the reference frame.
func (d *MotionDetector) Configure(granularity, leniency int) {
	if granularity != d.granularity {
		d.previous = nil
	}
	d.granularity = granularity
	d.leniency = leniency
}

// Detect returns the indices of the boxes whose average luma moved by more than
// the leniency since the previous frame. ok is false when there was no previous
// frame to compare with.
func (d *MotionDetector) Detect(l *LumaData) (changed []int, ok bool) {
	current := l.BoxAverages(d.granularity)
	previous := d.previous
	d.previous = current

	if previous == nil || len(previous) != len(current) {
		return nil, false
	}
	for i := range current {
		delta := current[i] - previous[i]
		if delta < 0 {
			delta = -delta
		}
		if delta > d.leniency {
			changed = append(changed, i)
		}
	}
	return changed, true
}
