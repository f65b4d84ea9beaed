package raflash

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// USB identity of the RA boot interface.
const (
	USB_VENDOR_ID  = 0x045B
	USB_PRODUCT_ID = 0x0261
)

const DEFAULT_BAUD_RATE = 9600

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// SerialPort is a Transport over a tty in raw mode.
type SerialPort struct {
	fd   int
	path string
}

// OpenSerial opens the tty at path and configures it 8N1 raw at the given
// baud rate.
func OpenSerial(path string, baud int) (port *SerialPort, err error) {
	speed, ok := baudRates[baud]
	if !ok {
		err = fmt.Errorf("unsupported baud rate %d", baud)
		return
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		err = wrapErr("failed to open port "+path, err)
		return
	}

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		err = wrapErr("failed to read port settings", err)
		return
	}

	//	raw 8N1, no flow control
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	tio.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	tio.Cflag &^= unix.CBAUD
	tio.Cflag |= speed
	tio.Ispeed = speed
	tio.Ospeed = speed
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0

	if err = unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		unix.Close(fd)
		err = wrapErr("failed to configure port "+path, err)
		return
	}
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)

	port = &SerialPort{fd: fd, path: path}
	return
}

func (p *SerialPort) Send(data []byte) (err error) {
	for len(data) > 0 {
		var n int
		n, err = unix.Write(p.fd, data)
		if err != nil {
			err = wrapErr("write to "+p.path+" failed", err)
			return
		}
		data = data[n:]
	}
	return
}

// RecvExact accumulates exactly n bytes or returns what arrived before the
// timeout together with ErrRecvTimeout.
func (p *SerialPort) RecvExact(n int, timeout time.Duration) (data []byte, err error) {
	if n > MAX_TRANSFER_SIZE {
		err = fmt.Errorf("requested length %d over max transfer size", n)
		return
	}
	deadline := time.Now().Add(timeout)
	data = make([]byte, 0, n)
	buf := make([]byte, n)
	for len(data) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			err = ErrRecvTimeout
			return
		}
		fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
		var ready int
		ready, err = unix.Poll(fds, int(remaining/time.Millisecond)+1)
		if err == unix.EINTR {
			err = nil
			continue
		}
		if err != nil {
			err = wrapErr("poll on "+p.path+" failed", err)
			return
		}
		if ready == 0 {
			err = ErrRecvTimeout
			return
		}
		var got int
		got, err = unix.Read(p.fd, buf[:n-len(data)])
		if err != nil {
			err = wrapErr("read from "+p.path+" failed", err)
			return
		}
		data = append(data, buf[:got]...)
	}
	return
}

func (p *SerialPort) Close() (err error) {
	if p.fd < 0 {
		return
	}
	err = unix.Close(p.fd)
	p.fd = -1
	return
}

// FindPort scans the system tty nodes for the RA boot interface and
// returns its device path.
func FindPort() (path string, err error) {
	matches, _ := filepath.Glob("/sys/class/tty/ttyUSB*")
	acm, _ := filepath.Glob("/sys/class/tty/ttyACM*")
	matches = append(matches, acm...)
	for _, sys := range matches {
		if vendorIDAt(sys) == USB_VENDOR_ID {
			path = "/dev/" + filepath.Base(sys)
			return
		}
	}
	err = ErrNotConnected
	return
}

func vendorIDAt(sysNode string) int {
	// the idVendor file sits on the USB device a few levels above the
	// tty class node
	dir := filepath.Join(sysNode, "device")
	for i := 0; i < 4; i++ {
		raw, err := ioutil.ReadFile(filepath.Join(dir, "idVendor"))
		if err == nil {
			id, convErr := strconv.ParseUint(strings.TrimSpace(string(raw)), 16, 16)
			if convErr == nil {
				return int(id)
			}
			return -1
		}
		dir = filepath.Join(dir, "..")
	}
	return -1
}
