package raflash

import (
	"time"
)

// Transport is a duplex byte channel to the boot firmware. It has no
// framing knowledge: callers write whole packets and read exact byte
// counts. A transport is exclusively owned by one session for its
// lifetime.
type Transport interface {
	Send(data []byte) (err error)
	RecvExact(n int, timeout time.Duration) (data []byte, err error)
	Close() (err error)
}
