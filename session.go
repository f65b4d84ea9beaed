package raflash

import (
	"time"

	"github.com/satori/go.uuid"
)

type SessionState int

const (
	STATE_DISCONNECTED SessionState = iota
	STATE_INQUIRED
	STATE_OPEN
)

// Session owns a Transport for its lifetime and runs the strict
// request/response exchanges of the boot firmware. Exactly one command is
// in flight at any time; a second command before the first reply would
// desynchronize the device irrecoverably.
type Session struct {
	transport Transport
	timeouts  Timeouts
	state     SessionState
	layout    ChipLayout
	selArea   int
	id        uuid.UUID
}

func NewSession(transport Transport) (s *Session) {
	s = &Session{
		transport: transport,
		timeouts:  DefaultTimeouts(),
		state:     STATE_DISCONNECTED,
		id:        uuid.NewV4(),
	}
	return
}

// Open establishes the boot session: probe for one already in progress,
// otherwise run the cold-boot code handshake.
func (s *Session) Open() (err error) {
	open, err := s.Inquire()
	if err != nil {
		return
	}
	if open {
		log.Debugf("session %s: boot session already established", s.id)
		return
	}
	err = s.Confirm()
	if err != nil {
		return
	}
	log.Debugf("session %s: boot code confirmed", s.id)
	return
}

// Inquire probes whether a boot session is already open. A cold ROM
// answers the inquiry with a lone 0x00 or nothing at all; an open session
// answers with a full packet.
func (s *Session) Inquire() (open bool, err error) {
	if s.transport == nil {
		err = ErrNotConnected
		return
	}
	frame, err := PackPacket(INQ_CMD, nil)
	if err != nil {
		return
	}
	if err = s.transport.Send(frame); err != nil {
		return
	}
	first, recvErr := s.transport.RecvExact(1, s.timeouts.Command)
	if recvErr != nil || len(first) == 0 || first[0] == 0x00 {
		s.state = STATE_INQUIRED
		return
	}
	rest, err := s.transport.RecvExact(6, s.timeouts.Command)
	if err != nil {
		return
	}
	if _, _, err = UnpackPacket(append(first, rest...)); err != nil {
		return
	}
	open = true
	s.state = STATE_OPEN
	return
}

// Confirm runs the cold-boot handshake: send the generic code 0x55 until
// the ROM answers with the boot code 0xC3.
func (s *Session) Confirm() (err error) {
	if s.transport == nil {
		err = ErrNotConnected
		return
	}
	for i := 0; i < s.timeouts.MaxTries; i++ {
		if err = s.transport.Send([]byte{0x55}); err != nil {
			return
		}
		ret, recvErr := s.transport.RecvExact(1, s.timeouts.Handshake)
		if recvErr != nil || len(ret) == 0 {
			log.Debugf("handshake timeout, retry #%d", i)
			continue
		}
		if ret[0] == 0xC3 {
			log.Notice("Reply received (0xC3)")
			s.state = STATE_OPEN
			return
		}
		log.Debugf("unexpected handshake reply 0x%02X, retry #%d", ret[0], i)
	}
	err = ErrHandshakeFailed
	return
}

// Authenticate is the hook for the ID code authentication flow. The flow
// is not implemented.
func (s *Session) Authenticate() (err error) {
	return ErrUnsupported
}

// Request runs one command exchange: pack, send, read exactly respLen
// reply bytes, unpack. A device status code is surfaced unchanged for the
// caller to judge.
func (s *Session) Request(cmd byte, payload []byte, respLen int, timeout time.Duration) (resp []byte, err error) {
	if s.transport == nil {
		err = ErrNotConnected
		return
	}
	frame, err := PackPacket(cmd, payload)
	if err != nil {
		return
	}
	return s.exchange(frame, respLen, timeout)
}

// RequestData is Request for a streaming continuation packet.
func (s *Session) RequestData(cmd byte, payload []byte, respLen int, timeout time.Duration) (resp []byte, err error) {
	if s.transport == nil {
		err = ErrNotConnected
		return
	}
	frame, err := PackDataPacket(cmd, payload)
	if err != nil {
		return
	}
	return s.exchange(frame, respLen, timeout)
}

func (s *Session) exchange(frame []byte, respLen int, timeout time.Duration) (resp []byte, err error) {
	if err = s.transport.Send(frame); err != nil {
		return
	}
	raw, err := s.transport.RecvExact(respLen, timeout)
	if err != nil {
		return
	}
	_, resp, err = UnpackPacket(raw)
	return
}

func (s *Session) State() SessionState {
	return s.state
}

func (s *Session) Timeouts() Timeouts {
	return s.timeouts
}

// Close releases the underlying transport. Safe to call on every exit
// path.
func (s *Session) Close() (err error) {
	if s.transport == nil {
		return
	}
	err = s.transport.Close()
	s.transport = nil
	s.state = STATE_DISCONNECTED
	return
}
