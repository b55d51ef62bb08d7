package meter

import "github.com/ineyio/industrymatch"

// NoopMeter discards all events.
type NoopMeter struct{}

var _ industrymatch.Meter = (*NoopMeter)(nil)

func (NoopMeter) OnSelect(industrymatch.SelectEvent) {}
func (NoopMeter) OnWait(industrymatch.WaitEvent)     {}
func (NoopMeter) OnRecord(industrymatch.RecordEvent) {}
func (NoopMeter) OnGroup(industrymatch.GroupEvent)   {}
func (NoopMeter) OnSummary(industrymatch.RunStats)   {}
