package handler

import "github.com/c360/flowgraph/stream"

// FixedSize behaves like Default but caps how far any one input stream may
// run ahead of the others: once a stream's queued length exceeds
// MaxQueueSize, its oldest packets are dropped before readiness is
// evaluated, trading completeness for bounded memory on bursty producers.
type FixedSize struct {
	MaxQueueSize int
	inner        Default
}

// NewFixedSize returns a FixedSize handler capping each input to
// maxQueueSize queued packets.
func NewFixedSize(maxQueueSize int) *FixedSize {
	return &FixedSize{MaxQueueSize: maxQueueSize}
}

// ComputeReadiness implements Handler.
func (f *FixedSize) ComputeReadiness(inputs map[string]*stream.Stream) Result {
	if f.MaxQueueSize > 0 {
		for _, s := range inputs {
			for s.Len() > f.MaxQueueSize {
				if _, ok := s.Pop(); !ok {
					break
				}
			}
		}
	}
	return f.inner.ComputeReadiness(inputs)
}
