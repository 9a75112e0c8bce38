package device

import (
	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/flash"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Answer is the responder's reply to a setup packet. Which of Data, Addr
// and Table is used depends on Memory. Length is the full size of the
// reply before it is clamped to wLength.
type Answer struct {
	Response Response
	Memory   Memory
	Data     []byte
	Addr     flash.Address
	Table    descriptor.Table
	Length   uint16
}

var (
	answerUnhandled  = Answer{Response: ResponseUnhandled}
	answerStall      = Answer{Response: ResponseStall}
	answerZeroLength = Answer{Response: ResponseZeroLength}
)

func ramAnswer(data []byte) Answer {
	return Answer{Response: ResponseData, Memory: MemoryRAM, Data: data, Length: uint16(len(data))}
}

// recordAnswer replies with the constant-memory record at addr, whose
// first byte is its own length.
func (s *Stack) recordAnswer(addr flash.Address) Answer {
	return Answer{
		Response: ResponseData,
		Memory:   MemoryFlash,
		Addr:     addr,
		Length:   uint16(flash.ReadByte(s.set.Mem, addr)),
	}
}

func multiPartAnswer(t descriptor.Table) Answer {
	return Answer{
		Response: ResponseData,
		Memory:   MemoryMultiPart,
		Table:    t,
		Length:   uint16(t.TotalLength()),
	}
}

// handleStandardRequest answers the captured setup packet. Class and
// vendor requests are left unhandled.
func (s *Stack) handleStandardRequest() Answer {
	if !s.packet.IsStandard() {
		return answerUnhandled
	}

	switch s.packet.Request {
	case RequestSetAddress:
		s.setState(StateAddressing)
		return answerZeroLength
	case RequestGetDescriptor:
		return s.handleGetDescriptor()
	case RequestSetConfiguration:
		if s.handleSetConfiguration() {
			return answerZeroLength
		}
		return answerStall
	case RequestGetConfiguration:
		s.reply[0] = s.ActiveConfiguration()
		return ramAnswer(s.reply[:1])
	case RequestGetInterface:
		s.reply[0] = s.activeAlt
		return ramAnswer(s.reply[:1])
	case RequestSetInterface:
		if s.packet.Value == 0 {
			return answerZeroLength
		}
		return answerStall
	case RequestGetStatus:
		return s.handleGetStatus()
	case RequestClearFeature:
		return s.handleFeature(false)
	case RequestSetFeature:
		return s.handleFeature(true)
	}
	return answerUnhandled
}

// handleGetDescriptor answers GET_DESCRIPTOR from the linked set.
func (s *Stack) handleGetDescriptor() Answer {
	if !s.packet.IsDeviceToHost() {
		return answerUnhandled
	}
	index := int(s.packet.DescriptorIndex())

	switch s.packet.DescriptorType() {
	case descriptor.TypeDevice:
		return s.recordAnswer(s.set.Device)
	case descriptor.TypeDeviceQualifier:
		if s.set.Qualifier == flash.Nil {
			break
		}
		return s.recordAnswer(s.set.Qualifier)
	case descriptor.TypeConfiguration:
		if index >= s.set.ConfigurationCount() {
			break
		}
		return multiPartAnswer(s.set.Configurations[index])
	case descriptor.TypeInterface:
		if index >= s.set.InterfaceCount() {
			break
		}
		return s.recordAnswer(s.set.Interfaces[index])
	case descriptor.TypeEndpoint:
		if index >= s.set.EndpointCount() {
			break
		}
		return s.recordAnswer(s.set.Endpoints[index])
	case descriptor.TypeString:
		if index >= s.set.StringCount() {
			break
		}
		return multiPartAnswer(s.set.Strings[index])
	}
	pkg.LogDebug(pkg.ComponentDescriptor, "descriptor not found",
		"type", s.packet.DescriptorType(), "index", index)
	return answerUnhandled
}

// handleSetConfiguration resets the user endpoints and, for a non-zero
// configuration value, configures every endpoint found in that
// configuration's descriptor table. It reports whether the value was
// valid.
func (s *Stack) handleSetConfiguration() bool {
	s.ctrl.ResetAll(hal.ScopeUser)

	config := uint8(s.packet.Value)
	if int(config) > s.set.ConfigurationCount() {
		pkg.LogDebug(pkg.ComponentDescriptor, "no such configuration", "value", config)
		return false
	}
	s.activeConfig.Store(uint32(config))
	s.activeAlt = 0

	if config == 0 {
		s.setState(StateAddressed)
	} else {
		mem := s.set.Mem
		for _, part := range s.set.Configurations[config-1].All() {
			if part.Length != descriptor.EndpointSize ||
				flash.ReadByte(mem, part.Addr+1) != byte(descriptor.TypeEndpoint) {
				continue
			}
			var rec [descriptor.EndpointSize]byte
			flash.Copy(mem, part.Addr, rec[:])
			var ep descriptor.EndpointDescriptor
			if err := descriptor.ParseEndpoint(rec[:], &ep); err != nil {
				pkg.LogWarn(pkg.ComponentDescriptor, "bad endpoint record", "error", err)
				continue
			}
			s.setupEndpoint(&ep)
		}
	}

	s.mutex.RLock()
	cb := s.onSetConfiguration
	s.mutex.RUnlock()
	if cb != nil {
		cb(config)
	}
	return true
}

// setupEndpoint configures the hardware for one endpoint descriptor.
// Control endpoints are left alone.
func (s *Stack) setupEndpoint(ep *descriptor.EndpointDescriptor) {
	if ep.TransferType() == descriptor.EndpointTypeControl {
		return
	}
	num := ep.Number()
	if err := hal.ValidEndpoint(s.ctrl, num); err != nil {
		pkg.LogWarn(pkg.ComponentEndpoint, "endpoint not configured", "error", err)
		return
	}
	dir := hal.Out
	if ep.IsIn() {
		dir = hal.In
	}
	s.ctrl.Configure(num, dir, hal.TransferType(ep.TransferType()), ep.MaxPacketSize)
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint configured",
		"endpoint", num, "direction", dir, "type", ep.TransferType(), "maxPacket", ep.MaxPacketSize)
}

// handleGetStatus answers GET_STATUS for the device, an interface or an
// endpoint.
func (s *Stack) handleGetStatus() Answer {
	s.reply = [2]byte{}
	switch s.packet.Recipient() {
	case RequestRecipientDevice:
		if config := s.ActiveConfiguration(); config != 0 {
			head := s.set.Configurations[config-1].Part(0)
			if flash.ReadByte(s.set.Mem, head.Addr+7)&descriptor.ConfigAttrSelfPowered != 0 {
				s.reply[0] |= 0x01
			}
		}
	case RequestRecipientInterface:
		if !s.IsConfigured() || int(s.packet.Index&0xFF) >= s.set.InterfaceCount() {
			return answerStall
		}
	case RequestRecipientEndpoint:
		num, dir, ok := s.endpointTarget()
		if !ok {
			return answerStall
		}
		if s.ctrl.Stalled(num, dir) {
			s.reply[0] |= 0x01
		}
	default:
		return answerStall
	}
	return ramAnswer(s.reply[:2])
}

// handleFeature answers SET_FEATURE and CLEAR_FEATURE. Only ENDPOINT_HALT
// is supported; EP0 accepts it without halting.
func (s *Stack) handleFeature(set bool) Answer {
	if s.packet.Recipient() != RequestRecipientEndpoint || s.packet.Value != FeatureEndpointHalt {
		return answerStall
	}
	num, dir, ok := s.endpointTarget()
	if !ok {
		return answerStall
	}
	if num != 0 {
		s.ctrl.SetStall(num, dir, set)
		pkg.LogDebug(pkg.ComponentEndpoint, "endpoint halt", "endpoint", num, "direction", dir, "halt", set)
	}
	return answerZeroLength
}

// endpointTarget decodes wIndex as an endpoint address. User endpoints
// only exist once configured.
func (s *Stack) endpointTarget() (uint8, hal.Direction, bool) {
	addr := s.packet.EndpointAddress()
	num := addr & descriptor.EndpointNumberMask
	dir := hal.Out
	if addr&descriptor.EndpointDirIn != 0 {
		dir = hal.In
	}
	if hal.ValidEndpoint(s.ctrl, num) != nil {
		return 0, 0, false
	}
	if num != 0 && !s.IsConfigured() {
		return 0, 0, false
	}
	return num, dir, true
}
