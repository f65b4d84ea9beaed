package raflash

import (
	"fmt"
)

var ErrNotConnected = fmt.Errorf("No port attached. Make sure the board is connected and in boot mode.")
var ErrHandshakeFailed = fmt.Errorf("Boot code handshake failed. Power cycle the board with the boot pin held and try again.")
var ErrRecvTimeout = fmt.Errorf("Timed out waiting for data from the device.")
var ErrUnsupported = fmt.Errorf("Operation not supported by this tool.")
var ErrVerifyFailed = fmt.Errorf("Verify failed: readback does not match the written image ✘")

//	Framing errors surfaced while unpacking a device reply.
var ErrBadSOD = fmt.Errorf("bad start-of-data byte in reply")
var ErrShortFrame = fmt.Errorf("reply shorter than its declared length")
var ErrBadChecksum = fmt.Errorf("reply checksum mismatch")
var ErrBadETX = fmt.Errorf("bad end-of-text byte in reply")
var ErrOversizePayload = fmt.Errorf("payload exceeds maximum packet size")

//	Boundary errors raised before any byte goes on the wire.
var ErrUnalignedStart = fmt.Errorf("start address not aligned on the erase sector size")
var ErrEmptyRange = fmt.Errorf("end address smaller than or equal to start address")
var ErrOutOfRange = fmt.Errorf("range does not fit in the available ROM space")

// Error wraps a sentinel with call-site context. Unwrap keeps the
// sentinel reachable for errors.Is.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		msg := e.msg
		if e.err != nil {
			msg += ": " + e.err.Error()
		}
		return msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

func wrapErr(msg string, e error) error {
	if e == nil {
		return nil
	}
	return Error{
		msg: msg,
		err: e,
	}
}

// DeviceError is a status reported by the boot firmware itself: a reply
// whose tag has the high bit set, carrying one code byte.
type DeviceError struct {
	Code byte
}

var deviceErrorStrings = map[byte]string{
	0xC0: "unsupported command",
	0xC1: "packet error",
	0xC2: "checksum error",
	0xC3: "flow error",
	0xD0: "address error",
	0xD4: "baud rate margin error",
	0xDA: "protocol error",
	0xDB: "ID mismatch",
	0xDC: "serial programming disabled",
	0xE1: "erase error",
	0xE2: "write error",
	0xE7: "sequencer error",
}

func (e DeviceError) Error() string {
	if s, ok := deviceErrorStrings[e.Code]; ok {
		return fmt.Sprintf("MCU encountered error 0x%02X (%s)", e.Code, s)
	}
	return fmt.Sprintf("MCU encountered error 0x%02X", e.Code)
}
