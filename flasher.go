package raflash

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
)

// CHUNK_SIZE is the data packet payload used by streaming transfers; the
// maximum the boot firmware accepts.
const CHUNK_SIZE = MAX_PAYLOAD_SIZE

// SetSizeBoundaries aligns a requested transfer range against an area's
// geometry. The start address must sit on an erase sector boundary; the
// end address is the last byte of the sector run covering size bytes and
// must stay inside the area.
func SetSizeBoundaries(area Area, startAddr, size uint32) (sad, ead uint32, err error) {
	sectorSize := area.EAU
	if sectorSize == 0 {
		err = wrapErr("area reports no erase unit", ErrOutOfRange)
		return
	}
	if startAddr%sectorSize != 0 {
		err = wrapErr("start address not a multiple of the erase sector size", ErrUnalignedStart)
		return
	}
	if size < sectorSize {
		log.Warning("size is less than one sector: transfer is padded with zeroes")
	}

	// 64 bit intermediates: a zero size or a range at the top of the
	// address space must not wrap before the checks below see it.
	blocks := (uint64(size) + uint64(sectorSize) - 1) / uint64(sectorSize)
	end := uint64(startAddr) + blocks*uint64(sectorSize) - 1

	if blocks == 0 || end <= uint64(startAddr) {
		err = ErrEmptyRange
		return
	}
	if end > uint64(area.EAD) {
		err = ErrOutOfRange
		return
	}
	sad = startAddr
	ead = uint32(end)
	return
}

func addrPayload(sad, ead uint32) (payload []byte) {
	payload = make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], sad)
	binary.BigEndian.PutUint32(payload[4:8], ead)
	return
}

func (s *Session) requireOpen() (err error) {
	if s.transport == nil {
		return ErrNotConnected
	}
	if s.state != STATE_OPEN {
		return ErrNotConnected
	}
	return
}

// Erase wipes the sector run covering [startAddr, startAddr+size). The
// device acks once the whole range is blank, which takes far longer than
// an ordinary command round trip.
func (s *Session) Erase(startAddr, size uint32) (err error) {
	if err = s.requireOpen(); err != nil {
		return
	}
	area, err := s.ActiveArea()
	if err != nil {
		return
	}
	sad, ead, err := SetSizeBoundaries(area, startAddr, size)
	if err != nil {
		return
	}
	log.Noticef("Erasing 0x%X:0x%X", sad, ead)
	if _, err = s.Request(ERA_CMD, addrPayload(sad, ead), 7, s.timeouts.Erase); err != nil {
		return
	}
	log.Notice("Erase complete")
	return
}

// WriteImage programs size bytes from src starting at startAddr. src is
// read in whole data packets until at least size bytes have gone out, so
// the final packet carries src bytes past size when src has them; a packet
// cut short by the end of src is zero padded. Every packet is acked by the
// device before the next goes out. A device status at any ack aborts the
// transfer; no partial commit is promised.
func (s *Session) WriteImage(src io.Reader, startAddr, size uint32) (err error) {
	if err = s.requireOpen(); err != nil {
		return
	}
	area, err := s.ActiveArea()
	if err != nil {
		return
	}
	sad, ead, err := SetSizeBoundaries(area, startAddr, size)
	if err != nil {
		return
	}

	if _, err = s.Request(WRI_CMD, addrPayload(sad, ead), 7, s.timeouts.Command); err != nil {
		return
	}

	chunk := make([]byte, CHUNK_SIZE)
	var total uint32
	for total < size {
		n, readErr := io.ReadFull(src, chunk)
		if n == 0 {
			if readErr == io.EOF {
				break
			}
			err = readErr
			return
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			err = readErr
			return
		}
		for i := n; i < CHUNK_SIZE; i++ {
			chunk[i] = 0
		}
		if _, err = s.RequestData(WRI_CMD, chunk, 7, s.timeouts.Command); err != nil {
			return
		}
		total += CHUNK_SIZE
		log.Debugf("wrote %d/%d bytes", total, size)
	}
	log.Noticef("Write complete (0x%X:0x%X)", sad, ead)
	return
}

// ReadImage dumps the range starting at startAddr into dst. The device
// pushes fixed-size data packets and waits for a one byte ack before each
// next one; the tail of the final packet is device padding, so dst
// receives whole packets and the caller truncates to the size it asked
// for.
func (s *Session) ReadImage(dst io.Writer, startAddr, size uint32) (err error) {
	if err = s.requireOpen(); err != nil {
		return
	}
	area, err := s.ActiveArea()
	if err != nil {
		return
	}
	sad, ead, err := SetSizeBoundaries(area, startAddr, size)
	if err != nil {
		return
	}

	frame, err := PackPacket(REA_CMD, addrPayload(sad, ead))
	if err != nil {
		return
	}
	if err = s.transport.Send(frame); err != nil {
		return
	}

	nrPackets := (ead - sad) / CHUNK_SIZE
	for i := uint32(0); i <= nrPackets; i++ {
		var raw, payload []byte
		raw, err = s.transport.RecvExact(CHUNK_SIZE+6, s.timeouts.Command)
		if err != nil {
			return
		}
		if _, payload, err = UnpackPacket(raw); err != nil {
			return
		}
		if _, err = dst.Write(payload); err != nil {
			return
		}
		log.Debugf("read packet %d/%d", i+1, nrPackets+1)

		var ack []byte
		ack, err = PackDataPacket(REA_CMD, []byte{0x00})
		if err != nil {
			return
		}
		if err = s.transport.Send(ack); err != nil {
			return
		}
	}
	log.Noticef("Read complete (0x%X:0x%X)", sad, ead)
	return
}

// Verify reads back the just-written range and compares it byte for byte
// against the original image. The readback is longer than the image
// because of packet alignment; only the first size bytes count.
func (s *Session) Verify(original io.Reader, startAddr, size uint32) (err error) {
	tmp, err := ioutil.TempFile("", ".raflash_verify_")
	if err != nil {
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err = s.ReadImage(tmp, startAddr, size); err != nil {
		return
	}
	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return
	}

	readback := make([]byte, size)
	if _, err = io.ReadFull(tmp, readback); err != nil {
		return
	}
	source, err := ioutil.ReadAll(io.LimitReader(original, int64(size)))
	if err != nil {
		return
	}
	if !bytes.Equal(readback[:len(source)], source) || uint32(len(source)) != size {
		err = ErrVerifyFailed
		return
	}
	log.Notice("Verify complete")
	return
}
