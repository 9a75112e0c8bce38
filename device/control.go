package device

import (
	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// readCtrlEP consumes the packet waiting in the EP0 OUT buffer into the
// OUT transfer's cursor and hands the buffer back to the controller. The
// received count is clamped to what the transfer still expects. It
// reports whether the transfer has received everything.
func (s *Stack) readCtrlEP() bool {
	st := &s.out
	n := s.ctrl.Received(0)
	if n > int(st.Remaining) {
		n = int(st.Remaining)
	}
	st.Remaining -= uint16(n)
	if st.Cursor.memory == MemoryRAM {
		st.Cursor.ram = s.ctrl.CopyIn(0, st.Cursor.ram, n)
	}
	s.ctrl.Arm(0, hal.Out, 0)
	return st.Remaining == 0
}

// writeCtrlEP queues the next packet of the IN transfer: min(remaining,
// EP0 size) bytes taken from the transfer's cursor. It reports whether
// the transfer is complete once this packet has gone out.
func (s *Stack) writeCtrlEP() bool {
	st := &s.in
	n := min(int(st.Remaining), int(s.ep0Size))
	st.Remaining -= uint16(n)

	offset := 0
	st.Cursor.advance(s.set.Mem, n, s.scratch[:], func(chunk []byte) {
		s.ctrl.CopyOut(0, chunk, len(chunk), offset)
		offset += len(chunk)
	})

	complete := st.Remaining == 0
	if complete && st.zlp && n == int(s.ep0Size) {
		// A full last packet would look like more is coming; the next
		// call sends the zero-length terminator.
		complete = false
	}
	if complete {
		st.Cursor = Cursor{}
	}
	s.ctrl.Arm(0, hal.In, n)
	return complete
}

// HandleSetupPacket captures the setup packet from EP0 OUT, answers it and
// starts the reply before returning.
func (s *Stack) HandleSetupPacket() {
	s.out.reset()
	s.out.Cursor = RAMCursor(s.setupBuf[:])
	s.out.Remaining = SetupPacketSize
	if !s.readCtrlEP() {
		pkg.LogWarn(pkg.ComponentControl, "truncated setup packet",
			"missing", s.out.Remaining, "error", pkg.ErrTruncated)
		s.ctrl.SetStall(0, hal.In, true)
		s.ctrl.ClearIO(hal.IOSetup)
		return
	}
	_ = ParseSetupPacket(s.setupBuf[:], &s.packet)
	pkg.LogDebug(pkg.ComponentControl, "setup", "packet", &s.packet)

	s.setControlState(ControlWait)
	s.in.reset()
	s.out.reset()

	ans := s.responder()

	s.in.Stall = ans.Response == ResponseStall || ans.Response == ResponseUnhandled
	s.in.NeedsArming = ans.Response == ResponseData || ans.Response == ResponseZeroLength
	switch ans.Memory {
	case MemoryFlash:
		s.in.Cursor = FlashCursor(ans.Addr)
	case MemoryMultiPart:
		s.in.Cursor = MultiPartCursor(ans.Table)
	default:
		s.in.Cursor = RAMCursor(ans.Data)
	}
	count := ans.Length
	if ans.Response == ResponseZeroLength {
		count = 0
	}
	s.in.Remaining = min(count, s.packet.Length)
	s.in.zlp = s.in.Remaining < s.packet.Length
	if ans.Response == ResponseData && !s.in.Cursor.hasSource() {
		s.in.NeedsArming = false
	}

	// A data answer to a host-to-device request names the buffer the
	// OUT data stage lands in.
	if ans.Response == ResponseData && !s.packet.IsDeviceToHost() && s.packet.Length != 0 {
		s.in.reset()
		s.out.NeedsArming = true
		s.out.Cursor = RAMCursor(ans.Data)
		s.out.Remaining = s.packet.Length
	}

	s.completeSetupPacket()
	s.ctrl.ClearIO(hal.IOSetup)
}

// completeSetupPacket moves the control state machine out of wait
// according to the prepared statuses.
func (s *Stack) completeSetupPacket() {
	s.ctrl.ClearStatus(0, hal.Out, hal.StatusSetupComplete)

	if !s.in.NeedsArming {
		switch {
		case s.out.NeedsArming:
			s.setControlState(ControlDataRX)
		case s.in.Stall:
			s.ctrl.SetStall(0, hal.In, true)
			s.setControlState(ControlIdle)
			pkg.LogDebug(pkg.ComponentControl, "stall", "request", s.packet.Request)
		}
		return
	}

	if s.packet.IsDeviceToHost() {
		s.setControlState(ControlDataTX)
	} else {
		s.setControlState(ControlStatusTX)
	}
	if s.writeCtrlEP() {
		if s.ControlState() == ControlDataTX {
			s.setControlState(ControlStatusRX)
		} else {
			s.setControlState(ControlIdle)
		}
	}
}

// handleControllerOutPacket handles a completed OUT transaction on EP0
// that was not a SETUP.
func (s *Stack) handleControllerOutPacket() {
	if s.ControlState() == ControlDataRX {
		if s.readCtrlEP() {
			pkg.LogWarn(pkg.ComponentControl, "OUT data stage has no consumer",
				"request", s.packet.Request, "length", s.packet.Length,
				"error", pkg.ErrNotSupported)
			s.setControlState(ControlStatusTX)
			s.ctrl.Arm(0, hal.In, 0)
		}
	} else {
		s.setControlState(ControlIdle)
	}
	s.ctrl.ClearStatus(0, hal.Out, hal.StatusIOComplete)
}

// handleControllerInPacket handles a completed IN transaction on EP0. A
// pending SET_ADDRESS is committed here, after its status stage has gone
// out at the old address.
func (s *Stack) handleControllerInPacket() {
	if s.State() == StateAddressing {
		if !s.packet.IsStandard() || s.packet.Request != RequestSetAddress || s.packet.AddressHigh() != 0 {
			s.ctrl.SetAddress(0)
			s.setState(StateWaiting)
			pkg.LogWarn(pkg.ComponentControl, "address not committed",
				"packet", &s.packet, "error", pkg.ErrAddressRejected)
		} else {
			addr := s.packet.AddressLow() & 0x7F
			s.ctrl.SetAddress(addr)
			s.setState(StateAddressed)
			pkg.LogDebug(pkg.ComponentControl, "address committed", "address", addr)
		}
	}

	if s.ControlState() == ControlDataTX {
		if s.writeCtrlEP() {
			s.setControlState(ControlIdle)
		}
	} else {
		s.setControlState(ControlIdle)
	}
	s.ctrl.ClearStatus(0, hal.In, hal.StatusIOComplete)
}

// HandleControlPacket dispatches a completed transaction on one half of
// EP0.
func (s *Stack) HandleControlPacket(dir hal.Direction) {
	if dir == hal.Out {
		if s.ctrl.Status(0, hal.Out)&hal.StatusSetupComplete != 0 {
			s.HandleSetupPacket()
		} else {
			s.handleControllerOutPacket()
		}
		return
	}
	s.handleControllerInPacket()
}
