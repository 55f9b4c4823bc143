package consensus

import "time"

// Run drives Tick at interval using clock, blocking until done is closed.
// Election.RunConsensusLoop passes RealClock; a caller that passes a
// FakeClock controls when each tick fires by advancing it explicitly.
func (r *Round) Run(clock Clock, interval time.Duration, done <-chan struct{}, onTick func(*Report)) {
	for {
		select {
		case <-done:
			return
		case now := <-clock.After(interval):
			report, err := r.Tick(now.UnixNano())
			if err != nil {
				continue
			}
			if onTick != nil {
				onTick(report)
			}
		}
	}
}
