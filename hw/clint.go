package hw

import "sync"
import "time"

// the core-local interruptor's timer: raises a supervisor timer interrupt on
// every hart once per tick.
type Clint_t struct {
	harts []*Hart_t
	tick  time.Duration
	stop  chan struct{}
	wg    sync.WaitGroup
}

func mkClint(harts []*Hart_t, tick time.Duration) *Clint_t {
	return &Clint_t{harts: harts, tick: tick, stop: make(chan struct{})}
}

func (c *Clint_t) start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.tick)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				for _, h := range c.harts {
					h.Raise(STIP)
				}
			case <-c.stop:
				return
			}
		}
	}()
}

func (c *Clint_t) halt() {
	close(c.stop)
	c.wg.Wait()
}

func (c *Clint_t) Tick() time.Duration {
	return c.tick
}

func (c *Clint_t) Read32(off uint64) uint32 {
	return 0
}

func (c *Clint_t) Write32(off uint64, v uint32) {
}
