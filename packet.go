package raflash

// Wire framing for the RA factory boot firmware. Every exchange is a
// delimited packet:
//
//	SOD | LNH | LNL | TAG | PAYLOAD | SUM | ETX
//
// LNH/LNL form a big-endian 16 bit count of TAG plus payload bytes. SUM is
// the two's complement of the 8 bit sum over LNH, LNL, TAG and the payload,
// so summing every byte between SOD and ETX yields zero mod 256.

const (
	SOD_CMD  byte = 0x01
	SOD_DATA byte = 0x81
	ETX_BYTE byte = 0x03
)

const (
	INQ_CMD byte = 0x00
	ERA_CMD byte = 0x12
	WRI_CMD byte = 0x13
	REA_CMD byte = 0x15
	IDA_CMD byte = 0x30
	BAU_CMD byte = 0x34
	SIG_CMD byte = 0x3A
	ARE_CMD byte = 0x3B
)

const (
	MAX_PAYLOAD_SIZE  = 1024
	MAX_TRANSFER_SIZE = MAX_PAYLOAD_SIZE + 6
)

// CalcSum returns the two length bytes and the checksum for a packet with
// the given tag and payload. The sum is computed over the literal wire
// bytes, identically on the pack and unpack paths.
func CalcSum(tag byte, payload []byte) (lnh, lnl, sum byte) {
	length := len(payload) + 1
	lnh = byte(length >> 8)
	lnl = byte(length)

	total := int(lnh) + int(lnl) + int(tag)
	for _, b := range payload {
		total += int(b)
	}
	sum = byte(-total)
	return
}

func pack(sod, tag byte, payload []byte) (frame []byte, err error) {
	if len(payload) > MAX_PAYLOAD_SIZE {
		err = ErrOversizePayload
		return
	}
	lnh, lnl, sum := CalcSum(tag, payload)
	frame = make([]byte, 0, len(payload)+6)
	frame = append(frame, sod, lnh, lnl, tag)
	frame = append(frame, payload...)
	frame = append(frame, sum, ETX_BYTE)
	return
}

// PackPacket frames a host command.
func PackPacket(cmd byte, payload []byte) (frame []byte, err error) {
	return pack(SOD_CMD, cmd, payload)
}

// PackDataPacket frames a continuation packet for a streaming transfer:
// same envelope as a command, but flagged with the data start byte and
// tagged with the command the stream belongs to.
func PackDataPacket(cmd byte, payload []byte) (frame []byte, err error) {
	return pack(SOD_DATA, cmd, payload)
}

// UnpackPacket validates a device reply and returns its tag and payload.
// A reply tag with the high bit set is a status report; the first payload
// byte is surfaced as a DeviceError and the low seven bits identify the
// command it answers.
func UnpackPacket(frame []byte) (tag byte, payload []byte, err error) {
	if len(frame) < 6 {
		err = ErrShortFrame
		return
	}
	if frame[0] != SOD_DATA {
		err = ErrBadSOD
		return
	}
	length := int(frame[1])<<8 | int(frame[2])
	tag = frame[3]
	pktLen := length - 1
	if pktLen < 0 || len(frame) < 4+pktLen+2 {
		err = ErrShortFrame
		return
	}
	payload = frame[4 : 4+pktLen]

	// A status reply outranks its own framing: the boot firmware pads
	// error packets with a stale checksum, so report the device code
	// before judging the trailer.
	if tag&0x80 != 0 && len(payload) > 0 {
		err = DeviceError{Code: payload[0]}
		return
	}

	total := int(frame[1]) + int(frame[2]) + int(tag)
	for _, b := range payload {
		total += int(b)
	}
	if byte(-total) != frame[4+pktLen] {
		err = ErrBadChecksum
		return
	}
	if frame[4+pktLen+1] != ETX_BYTE {
		err = ErrBadETX
		return
	}
	return
}
