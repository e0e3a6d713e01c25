package bus

import "fmt"

// Priority orders work on the bus. It serves two independent purposes:
// passed to Publish it decides which waiting event is dequeued next; passed
// to Subscribe it decides handler invocation order within one event. Lower
// values run first.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Low
)

const numPriorities = 4

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func clampPriority(p Priority) Priority {
	if p < Critical {
		return Critical
	}
	if p > Low {
		return Low
	}
	return p
}
