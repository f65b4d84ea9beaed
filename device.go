package raflash

import (
	"encoding/binary"
	"fmt"

	"github.com/blang/semver"
)

// Oldest boot firmware revision this tool has been exercised against.
var minBootFirmware = semver.Version{Major: 1, Minor: 0}

// DevInfo is the device signature reported by the SIG command.
type DevInfo struct {
	SCI uint32 // serial interface speed in Hz
	RMB uint32 // recommended max UART baud rate in bps
	NOA byte   // user area presence bitfield
	TYP byte   // MCU series
	BFV uint16 // boot firmware version, major<<8 | minor
}

func (d DevInfo) Series() string {
	switch d.TYP {
	case 0x02:
		return "RA MCU + RA2/RA4 Series"
	case 0x03:
		return "RA MCU + RA6 Series"
	}
	return "Unknown MCU type"
}

// BootVersion returns the boot firmware revision as a comparable version.
func (d DevInfo) BootVersion() semver.Version {
	return semver.Version{
		Major: uint64(d.BFV >> 8),
		Minor: uint64(d.BFV & 0xFF),
	}
}

func (d DevInfo) BootFirmwareTested() bool {
	return d.BootVersion().GTE(minBootFirmware)
}

// Area is one flash region as reported by the ARE command. EAD is
// inclusive. EAU parameterizes erase alignment, WAU the programming
// granularity.
type Area struct {
	KOA byte
	SAD uint32
	EAD uint32
	EAU uint32
	WAU uint32
}

func (a Area) String() string {
	return fmt.Sprintf("Area %d: 0x%X:0x%X (erase 0x%X - write 0x%X)",
		a.KOA, a.SAD, a.EAD, a.EAU, a.WAU)
}

// ChipLayout maps area index to its geometry.
type ChipLayout map[int]Area

// GetDevInfo issues the signature request and decodes the reply.
func (s *Session) GetDevInfo() (info DevInfo, err error) {
	payload, err := s.Request(SIG_CMD, nil, 18, s.timeouts.Command)
	if err != nil {
		return
	}
	if len(payload) < 12 {
		err = wrapErr("signature reply truncated", ErrShortFrame)
		return
	}
	info.SCI = binary.BigEndian.Uint32(payload[0:4])
	info.RMB = binary.BigEndian.Uint32(payload[4:8])
	info.NOA = payload[8]
	info.TYP = payload[9]
	info.BFV = binary.BigEndian.Uint16(payload[10:12])
	return
}

// GetAreaInfo interrogates areas 0 through 2 and returns the chip layout.
func (s *Session) GetAreaInfo() (layout ChipLayout, err error) {
	layout = ChipLayout{}
	for _, i := range []int{0, 1, 2} {
		var payload []byte
		payload, err = s.Request(ARE_CMD, []byte{byte(i)}, 23, s.timeouts.Command)
		if err != nil {
			return
		}
		if len(payload) < 17 {
			err = wrapErr("area reply truncated", ErrShortFrame)
			return
		}
		layout[i] = Area{
			KOA: payload[0],
			SAD: binary.BigEndian.Uint32(payload[1:5]),
			EAD: binary.BigEndian.Uint32(payload[5:9]),
			EAU: binary.BigEndian.Uint32(payload[9:13]),
			WAU: binary.BigEndian.Uint32(payload[13:17]),
		}
	}
	return
}

// SetChipLayout stores the layout used for all subsequent boundary math.
func (s *Session) SetChipLayout(layout ChipLayout) (err error) {
	if len(layout) == 0 {
		err = fmt.Errorf("could not get chip layout")
		return
	}
	s.layout = layout
	return
}

// SelectArea switches the active area for transfers. Area 0 is the
// default.
func (s *Session) SelectArea(index int) (err error) {
	if _, ok := s.layout[index]; !ok {
		err = fmt.Errorf("no such area %d", index)
		return
	}
	s.selArea = index
	return
}

// Layout returns the stored chip layout.
func (s *Session) Layout() ChipLayout {
	return s.layout
}

// ActiveArea returns the geometry transfers are aligned against.
func (s *Session) ActiveArea() (area Area, err error) {
	area, ok := s.layout[s.selArea]
	if !ok {
		err = fmt.Errorf("chip layout not loaded")
		return
	}
	return
}
