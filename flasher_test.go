package raflash

import (
	"bytes"
	"errors"
	"testing"
)

var testLayout = ChipLayout{
	0: {KOA: 0, SAD: 0, EAD: 0x3FFFF, EAU: 0x800, WAU: 0x80},
}

func TestSetSizeBoundaries(t *testing.T) {
	area := testLayout[0]

	sad, ead, err := SetSizeBoundaries(area, 0, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if sad != 0 || ead != 0xFFF {
		t.Fatalf("got 0x%X:0x%X", sad, ead)
	}

	//	sub-sector sizes round up to one full sector
	_, ead, err = SetSizeBoundaries(area, 0x800, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ead != 0xFFF {
		t.Fatalf("sub-sector end 0x%X", ead)
	}
}

func TestSetSizeBoundariesUnaligned(t *testing.T) {
	for _, eau := range []uint32{0x400, 0x800, 0x1000} {
		area := Area{SAD: 0, EAD: 0x3FFFF, EAU: eau, WAU: 0x80}
		for _, start := range []uint32{1, eau - 1, eau + 4, 3 * eau / 2} {
			if start%eau == 0 {
				continue
			}
			_, _, err := SetSizeBoundaries(area, start, 0x1000)
			if !errors.Is(err, ErrUnalignedStart) {
				t.Fatalf("EAU 0x%X start 0x%X: got %v", eau, start, err)
			}
		}
	}
}

func TestSetSizeBoundariesEmptyRange(t *testing.T) {
	_, _, err := SetSizeBoundaries(testLayout[0], 0x800, 0)
	if !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("got %v", err)
	}
	_, _, err = SetSizeBoundaries(testLayout[0], 0, 0)
	if !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("got %v", err)
	}
}

func TestSetSizeBoundariesOutOfRange(t *testing.T) {
	_, _, err := SetSizeBoundaries(testLayout[0], 0x3F800, 0x1000)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
}

func TestTransfersRequireOpenSession(t *testing.T) {
	mock := NewMockTransport(t)
	s := NewSession(mock)
	if err := s.SetChipLayout(testLayout); err != nil {
		t.Fatal(err)
	}

	if err := s.Erase(0, 0x1000); err != ErrNotConnected {
		t.Fatalf("erase on closed session: %v", err)
	}
	if err := s.WriteImage(bytes.NewReader(make([]byte, 16)), 0, 16); err != ErrNotConnected {
		t.Fatalf("write on closed session: %v", err)
	}
	if err := s.ReadImage(&bytes.Buffer{}, 0, 16); err != ErrNotConnected {
		t.Fatalf("read on closed session: %v", err)
	}
}

func TestErase(t *testing.T) {
	s, mock := openTestSession(t, testLayout)
	mock.Enqueue(mustPackData(t, ERA_CMD, []byte{0x00}))

	if err := s.Erase(0, 0x1000); err != nil {
		t.Fatal(err)
	}

	sent := mock.SentFrames()
	if len(sent) != 1 {
		t.Fatalf("%d frames sent", len(sent))
	}
	want := []byte{
		0x01, 0x00, 0x09, ERA_CMD,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x0F, 0xFF,
	}
	if !bytes.Equal(sent[0][:12], want) {
		t.Fatalf("erase frame %v", sent[0])
	}
}

func TestEraseDeviceError(t *testing.T) {
	s, mock := openTestSession(t, testLayout)
	mock.Enqueue(mustPackData(t, ERA_CMD|0x80, []byte{0xE1}))

	err := s.Erase(0, 0x1000)
	var devErr DeviceError
	if !errors.As(err, &devErr) || devErr.Code != 0xE1 {
		t.Fatalf("expected erase error, got %v", err)
	}
}

func TestWriteImageStreaming(t *testing.T) {
	s, mock := openTestSession(t, testLayout)

	img := make([]byte, 1500)
	for i := range img {
		img[i] = byte(i)
	}
	//	header ack plus one ack per data packet
	for i := 0; i < 3; i++ {
		mock.Enqueue(mustPackData(t, WRI_CMD, []byte{0x00}))
	}

	if err := s.WriteImage(bytes.NewReader(img), 0, uint32(len(img))); err != nil {
		t.Fatal(err)
	}

	sent := mock.SentFrames()
	if len(sent) != 3 {
		t.Fatalf("%d frames sent, want header + 2 data packets", len(sent))
	}

	header := sent[0]
	if header[0] != SOD_CMD || header[3] != WRI_CMD {
		t.Fatalf("write header %v", header[:4])
	}
	if !bytes.Equal(header[4:12], []byte{0, 0, 0, 0, 0, 0, 0x07, 0xFF}) {
		t.Fatalf("write range %v", header[4:12])
	}

	for _, data := range sent[1:] {
		if data[0] != SOD_DATA || data[3] != WRI_CMD {
			t.Fatalf("data packet header %v", data[:4])
		}
		if len(data) != MAX_TRANSFER_SIZE {
			t.Fatalf("data packet length %d", len(data))
		}
	}
	if !bytes.Equal(sent[1][4:4+CHUNK_SIZE], img[:CHUNK_SIZE]) {
		t.Fatal("first chunk does not match the image")
	}
	second := sent[2][4 : 4+CHUNK_SIZE]
	if !bytes.Equal(second[:1500-CHUNK_SIZE], img[CHUNK_SIZE:]) {
		t.Fatal("second chunk does not match the image")
	}
	for i := 1500 - CHUNK_SIZE; i < CHUNK_SIZE; i++ {
		if second[i] != 0 {
			t.Fatalf("final chunk not zero padded at offset %d", i)
		}
	}
}

func TestWriteImageDeviceErrorAborts(t *testing.T) {
	s, mock := openTestSession(t, testLayout)

	mock.Enqueue(mustPackData(t, WRI_CMD, []byte{0x00}))
	//	flow error on the first data packet
	mock.Enqueue(mustPackData(t, WRI_CMD|0x80, []byte{0xC3}))

	img := make([]byte, 4096)
	err := s.WriteImage(bytes.NewReader(img), 0, uint32(len(img)))
	var devErr DeviceError
	if !errors.As(err, &devErr) || devErr.Code != 0xC3 {
		t.Fatalf("expected flow error, got %v", err)
	}
	//	header plus exactly one data packet went out
	if len(mock.SentFrames()) != 2 {
		t.Fatalf("%d frames sent after fatal ack", len(mock.SentFrames()))
	}
}

func TestReadImageStreaming(t *testing.T) {
	s, mock := openTestSession(t, testLayout)

	//	0x1000 bytes span four data packets
	img := make([]byte, 0x1000)
	for i := range img {
		img[i] = byte(i * 3)
	}
	for off := 0; off < len(img); off += CHUNK_SIZE {
		mock.Enqueue(mustPackData(t, REA_CMD, img[off:off+CHUNK_SIZE]))
	}

	var sink bytes.Buffer
	if err := s.ReadImage(&sink, 0, uint32(len(img))); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sink.Bytes(), img) {
		t.Fatal("readback does not match the device payloads")
	}

	sent := mock.SentFrames()
	if len(sent) != 5 {
		t.Fatalf("%d frames sent, want header + 4 acks", len(sent))
	}
	if sent[0][0] != SOD_CMD || sent[0][3] != REA_CMD {
		t.Fatalf("read header %v", sent[0][:4])
	}
	ack := []byte{0x81, 0x00, 0x02, 0x15, 0x00, 0xE9, 0x03}
	for _, frame := range sent[1:] {
		if !bytes.Equal(frame, ack) {
			t.Fatalf("pull ack %v, want %v", frame, ack)
		}
	}
}

func TestVerify(t *testing.T) {
	layout := ChipLayout{
		0: {KOA: 0, SAD: 0, EAD: 0x7FF, EAU: 0x400, WAU: 0x40},
	}
	img := make([]byte, CHUNK_SIZE)
	for i := range img {
		img[i] = byte(i ^ 0x5A)
	}

	s, mock := openTestSession(t, layout)
	mock.Enqueue(mustPackData(t, REA_CMD, img))
	if err := s.Verify(bytes.NewReader(img), 0, uint32(len(img))); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	layout := ChipLayout{
		0: {KOA: 0, SAD: 0, EAD: 0x7FF, EAU: 0x400, WAU: 0x40},
	}
	img := make([]byte, CHUNK_SIZE)
	for i := range img {
		img[i] = byte(i ^ 0x5A)
	}
	corrupted := make([]byte, len(img))
	copy(corrupted, img)
	corrupted[100] ^= 0xFF

	s, mock := openTestSession(t, layout)
	mock.Enqueue(mustPackData(t, REA_CMD, corrupted))
	if err := s.Verify(bytes.NewReader(img), 0, uint32(len(img))); err != ErrVerifyFailed {
		t.Fatalf("expected verify failure, got %v", err)
	}
}
