package sim

import (
	"errors"
	"testing"

	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

func TestMapType(t *testing.T) {
	tests := []struct {
		typ  hal.TransferType
		want EndpointType
	}{
		{hal.Control, TypeControl},
		{hal.Isochronous, TypeIsochronous},
		{hal.Bulk, TypeBulk},
		{hal.Interrupt, TypeBulk},
	}
	for _, tt := range tests {
		if got := MapType(tt.typ); got != tt.want {
			t.Errorf("MapType(%v) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestMapBufferSize(t *testing.T) {
	tests := []struct {
		size uint16
		want BufferSize
	}{
		{0, BufferSize8},
		{8, BufferSize8},
		{9, BufferSize16},
		{16, BufferSize16},
		{17, BufferSize32},
		{32, BufferSize32},
		{33, BufferSize64},
		{64, BufferSize64},
		{65, BufferSize1023},
		{1023, BufferSize1023},
	}
	for _, tt := range tests {
		if got := MapBufferSize(tt.size); got != tt.want {
			t.Errorf("MapBufferSize(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestNewController(t *testing.T) {
	for _, n := range []int{0, MaxEndpoints + 1} {
		if _, err := NewController(n); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("NewController(%d) error = %v, want %v", n, err, pkg.ErrInvalidParameter)
		}
	}

	c, err := NewController(4)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if got := c.Endpoints(); got != 4 {
		t.Errorf("Endpoints() = %d, want 4", got)
	}
	st := c.Endpoint(3, hal.In)
	if st.Type != TypeDisabled || st.Status != hal.StatusNACK0 {
		t.Errorf("initial endpoint = %+v, want disabled with NACK0", st)
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(2)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	c.Configure(0, hal.Out, hal.Control, 64)
	c.Configure(0, hal.In, hal.Control, 64)
	c.Attach()
	return c
}

func TestSetupAlwaysAccepted(t *testing.T) {
	c := newTestController(t)
	c.SetStall(0, hal.In, true)
	c.SetStall(0, hal.Out, true)

	pkt := []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}
	hs, err := c.setup(0, pkt)
	if err != nil || hs != pkg.HandshakeACK {
		t.Fatalf("setup() = %v, %v, want ACK", hs, err)
	}
	if c.Stalled(0, hal.In) || c.Stalled(0, hal.Out) {
		t.Error("SETUP did not clear the EP0 stall bits")
	}
	if got := c.Received(0); got != len(pkt) {
		t.Errorf("Received() = %d, want %d", got, len(pkt))
	}
	if st := c.Status(0, hal.Out); st&hal.StatusSetupComplete == 0 {
		t.Errorf("status = %v, want SetupComplete", st)
	}
	if _, io := c.pending(); io {
		t.Error("IO interrupt pending while disabled")
	}
	c.EnableIO(true)
	if _, io := c.pending(); !io {
		t.Error("IO interrupt not pending after SETUP")
	}

	var buf [8]byte
	rest := c.CopyIn(0, buf[:], 8)
	if len(rest) != 0 || string(buf[:]) != string(pkt) {
		t.Errorf("CopyIn() = % X, rest %d", buf, len(rest))
	}
}

func TestTransactionHandshakes(t *testing.T) {
	c := newTestController(t)

	// Fresh endpoints NAK until armed.
	if _, hs, err := c.in(0, 0); err != nil || hs != pkg.HandshakeNAK {
		t.Errorf("in() before arm = %v, %v, want NAK", hs, err)
	}
	if hs, err := c.out(0, 0, nil); err != nil || hs != pkg.HandshakeNAK {
		t.Errorf("out() before arm = %v, %v, want NAK", hs, err)
	}

	c.CopyOut(0, []byte{1, 2, 3}, 3, 0)
	c.Arm(0, hal.In, 3)
	data, hs, err := c.in(0, 0)
	if err != nil || hs != pkg.HandshakeACK || string(data) != "\x01\x02\x03" {
		t.Errorf("in() = % X, %v, %v, want 01 02 03 ACK", data, hs, err)
	}
	if _, hs, _ := c.in(0, 0); hs != pkg.HandshakeNAK {
		t.Errorf("second in() = %v, want NAK", hs)
	}

	c.Arm(0, hal.Out, 0)
	if hs, err := c.out(0, 0, []byte{9, 9}); err != nil || hs != pkg.HandshakeACK {
		t.Errorf("out() = %v, %v, want ACK", hs, err)
	}
	if got := c.Received(0); got != 2 {
		t.Errorf("Received() = %d, want 2", got)
	}

	c.SetStall(0, hal.In, true)
	if _, hs, _ := c.in(0, 0); hs != pkg.HandshakeStall {
		t.Errorf("in() on stalled endpoint = %v, want STALL", hs)
	}
}

func TestTransactionErrors(t *testing.T) {
	c := newTestController(t)

	if _, _, err := c.in(0, 1); !errors.Is(err, pkg.ErrInvalidEndpoint) {
		t.Errorf("in() on disabled endpoint error = %v, want %v", err, pkg.ErrInvalidEndpoint)
	}
	if _, _, err := c.in(0, 7); !errors.Is(err, pkg.ErrInvalidEndpoint) {
		t.Errorf("in() on missing endpoint error = %v, want %v", err, pkg.ErrInvalidEndpoint)
	}
	if _, err := c.setup(5, make([]byte, 8)); !errors.Is(err, pkg.ErrAddressRejected) {
		t.Errorf("setup() at wrong address error = %v, want %v", err, pkg.ErrAddressRejected)
	}

	c.Configure(1, hal.Out, hal.Bulk, 8)
	c.Arm(1, hal.Out, 0)
	if _, err := c.out(0, 1, make([]byte, 9)); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("oversized out() error = %v, want %v", err, pkg.ErrInvalidParameter)
	}

	c.Detach()
	if _, err := c.setup(0, make([]byte, 8)); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("setup() while detached error = %v, want %v", err, pkg.ErrNotRunning)
	}
}

func TestResetAllScope(t *testing.T) {
	c := newTestController(t)
	c.Configure(1, hal.In, hal.Interrupt, 16)
	c.SetStall(0, hal.In, true)

	c.ResetAll(hal.ScopeUser)
	if got := c.Endpoint(1, hal.In).Type; got != TypeDisabled {
		t.Errorf("EP1 IN type = %v, want %v", got, TypeDisabled)
	}
	if !c.Stalled(0, hal.In) {
		t.Error("ScopeUser reset touched EP0")
	}

	c.ResetAll(hal.ScopeAll)
	if got := c.Endpoint(0, hal.In).Type; got != TypeDisabled {
		t.Errorf("EP0 IN type = %v, want %v", got, TypeDisabled)
	}
}

func TestCopyOutOverrun(t *testing.T) {
	c := newTestController(t)
	src := make([]byte, 10)
	for i := range src {
		src[i] = byte(i)
	}
	rest := c.CopyOut(0, src, 10, BufferBytes-4)
	if len(rest) != 6 {
		t.Errorf("CopyOut() rest = %d, want 6", len(rest))
	}
}

func TestBusEventLatching(t *testing.T) {
	c := newTestController(t)
	c.signal(hal.BusReset | hal.BusSOF)

	if events, _ := c.pending(); events != 0 {
		t.Errorf("pending() with interrupts disabled = %v, want none", events)
	}
	c.EnableBusEvents(hal.BusEventsAll)
	if events, _ := c.pending(); events != hal.BusReset {
		t.Errorf("pending() = %v, want %v", events, hal.BusReset)
	}
	c.ClearBusEvents(hal.BusReset)
	if got := c.BusEvents(); got != hal.BusSOF {
		t.Errorf("BusEvents() = %v, want %v", got, hal.BusSOF)
	}
}
