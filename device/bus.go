package device

import (
	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// HandleBusEvent is the bus event interrupt handler. events holds the
// pending flags whose interrupts are enabled. While suspended, everything
// but resume is ignored.
func (s *Stack) HandleBusEvent(events hal.BusEvent) {
	if s.State() == StateAttached {
		s.setState(StatePowered)
	}

	if events&hal.BusResume != 0 {
		s.wakeup()
	} else if s.suspended.Load() {
		return
	}

	if events&hal.BusReset != 0 {
		s.reset()
		s.setState(StateWaiting)
		return
	} else if events&hal.BusSuspend != 0 {
		s.suspend()
	}

	if events&hal.BusSOF != 0 {
		s.frames.Add(1)
		s.ctrl.ClearBusEvents(hal.BusSOF)
	}
}

// reset returns every endpoint to its idle state after a bus reset. Each
// endpoint half's own interrupt is masked while it is reset, and only
// EP0's are unmasked again.
func (s *Stack) reset() {
	c := s.ctrl
	// A SETUP can land on EP0 OUT while the reset is in progress; its
	// status is saved here and put back before the reset flag is cleared.
	ep0OutStatus := c.Status(0, hal.Out)
	for ep := 0; ep < c.Endpoints(); ep++ {
		for _, dir := range [...]hal.Direction{hal.Out, hal.In} {
			c.EnableInterrupt(uint8(ep), dir, false)
			c.ResetEndpoint(uint8(ep), dir)
		}
	}

	c.SetAddress(0)
	s.activeConfig.Store(0)
	s.activeAlt = 0
	s.setControlState(ControlIdle)
	s.setState(StateAttached)
	c.EnableBusEvents(hal.BusEventsAll | hal.BusSOF)
	c.EnableIO(true)
	c.SetStatus(0, hal.Out, ep0OutStatus)
	c.EnableInterrupt(0, hal.Out, true)
	c.EnableInterrupt(0, hal.In, true)
	c.ClearBusEvents(hal.BusReset)
	pkg.LogDebug(pkg.ComponentBus, "bus reset")
}

func (s *Stack) suspend() {
	s.suspended.Store(true)
	s.ctrl.ClearBusEvents(hal.BusSuspend)
	pkg.LogDebug(pkg.ComponentBus, "suspended")
}

func (s *Stack) wakeup() {
	s.suspended.Store(false)
	s.ctrl.ClearBusEvents(hal.BusResume)
	pkg.LogDebug(pkg.ComponentBus, "resumed")
}

// HandleIOComplete is the transaction-complete interrupt handler. It
// dispatches every EP0 half with a completed transaction and acknowledges
// completions on user endpoints. Completions that arrive before the first
// bus reset are discarded.
func (s *Stack) HandleIOComplete() {
	c := s.ctrl
	c.ClearIO(hal.IOComplete)

	switch s.State() {
	case StateDetached, StateAttached, StatePowered:
		c.ClearIO(hal.IOSetup)
		return
	}

	for ep := 0; ep < c.Endpoints(); ep++ {
		for _, dir := range [...]hal.Direction{hal.Out, hal.In} {
			status := c.Status(uint8(ep), dir)
			if status&(hal.StatusIOComplete|hal.StatusSetupComplete) == 0 {
				continue
			}
			if ep == 0 {
				s.HandleControlPacket(dir)
				continue
			}
			c.ClearStatus(uint8(ep), dir, hal.StatusIOComplete)
		}
	}
}
