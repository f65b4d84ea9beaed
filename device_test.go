package raflash

import (
	"encoding/binary"
	"testing"
)

func sigPayload(sci, rmb uint32, noa, typ byte, bfv uint16) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], sci)
	binary.BigEndian.PutUint32(payload[4:8], rmb)
	payload[8] = noa
	payload[9] = typ
	binary.BigEndian.PutUint16(payload[10:12], bfv)
	return payload
}

func areaPayload(a Area) []byte {
	payload := make([]byte, 17)
	payload[0] = a.KOA
	binary.BigEndian.PutUint32(payload[1:5], a.SAD)
	binary.BigEndian.PutUint32(payload[5:9], a.EAD)
	binary.BigEndian.PutUint32(payload[9:13], a.EAU)
	binary.BigEndian.PutUint32(payload[13:17], a.WAU)
	return payload
}

func TestGetDevInfo(t *testing.T) {
	s, mock := openTestSession(t, nil)
	mock.Enqueue(mustPackData(t, SIG_CMD, sigPayload(0x01312D00, 0x001E8480, 0x04, 0x02, 0x0A08)))

	info, err := s.GetDevInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.SCI != 20000000 {
		t.Fatalf("SCI %d", info.SCI)
	}
	if info.RMB != 2000000 {
		t.Fatalf("RMB %d", info.RMB)
	}
	if info.NOA != 0x04 || info.TYP != 0x02 {
		t.Fatalf("NOA 0x%02X TYP 0x%02X", info.NOA, info.TYP)
	}
	if info.Series() != "RA MCU + RA2/RA4 Series" {
		t.Fatalf("series %q", info.Series())
	}
	if v := info.BootVersion(); v.Major != 10 || v.Minor != 8 {
		t.Fatalf("boot version %s", v)
	}
	if !info.BootFirmwareTested() {
		t.Fatal("version 10.8 flagged as untested")
	}

	//	signature request is a bare SIG command
	sent := mock.SentFrames()
	if len(sent) != 1 || sent[0][3] != SIG_CMD {
		t.Fatalf("signature request %v", sent)
	}
}

func TestBootFirmwareTooOld(t *testing.T) {
	info := DevInfo{BFV: 0x0001}
	if info.BootFirmwareTested() {
		t.Fatal("version 0.1 passed the tested-revision check")
	}
}

func TestUnknownSeries(t *testing.T) {
	info := DevInfo{TYP: 0x07}
	if info.Series() != "Unknown MCU type" {
		t.Fatalf("series %q", info.Series())
	}
}

func TestGetAreaInfo(t *testing.T) {
	s, mock := openTestSession(t, nil)
	areas := []Area{
		{KOA: 0, SAD: 0x00000000, EAD: 0x0003FFFF, EAU: 0x2000, WAU: 0x80},
		{KOA: 1, SAD: 0x08000000, EAD: 0x08001FFF, EAU: 0x400, WAU: 0x40},
		{KOA: 2, SAD: 0x01010000, EAD: 0x010107FF, EAU: 0x800, WAU: 0x40},
	}
	for _, a := range areas {
		mock.Enqueue(mustPackData(t, ARE_CMD, areaPayload(a)))
	}

	layout, err := s.GetAreaInfo()
	if err != nil {
		t.Fatal(err)
	}
	if len(layout) != 3 {
		t.Fatalf("%d areas", len(layout))
	}
	for i, want := range areas {
		if layout[i] != want {
			t.Fatalf("area %d: %+v, want %+v", i, layout[i], want)
		}
	}

	//	one request per area index, carrying that index
	sent := mock.SentFrames()
	if len(sent) != 3 {
		t.Fatalf("%d area requests", len(sent))
	}
	for i, frame := range sent {
		if frame[3] != ARE_CMD || frame[4] != byte(i) {
			t.Fatalf("area request %d: %v", i, frame)
		}
	}
}

func TestSetChipLayoutRejectsEmpty(t *testing.T) {
	s, _ := openTestSession(t, nil)
	if err := s.SetChipLayout(ChipLayout{}); err == nil {
		t.Fatal("empty layout accepted")
	}
}

func TestSelectArea(t *testing.T) {
	layout := ChipLayout{
		0: {KOA: 0, SAD: 0, EAD: 0x3FFFF, EAU: 0x2000, WAU: 0x80},
		2: {KOA: 2, SAD: 0x01010000, EAD: 0x010107FF, EAU: 0x800, WAU: 0x40},
	}
	s, _ := openTestSession(t, layout)

	area, err := s.ActiveArea()
	if err != nil {
		t.Fatal(err)
	}
	if area.KOA != 0 {
		t.Fatalf("default area %d", area.KOA)
	}

	if err := s.SelectArea(2); err != nil {
		t.Fatal(err)
	}
	area, err = s.ActiveArea()
	if err != nil {
		t.Fatal(err)
	}
	if area.EAU != 0x800 {
		t.Fatalf("selected area erase unit 0x%X", area.EAU)
	}

	if err := s.SelectArea(5); err == nil {
		t.Fatal("bogus area index accepted")
	}
}
