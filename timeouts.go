package raflash

import (
	"time"
)

type Timeouts struct {
	Command   time.Duration
	Erase     time.Duration
	Handshake time.Duration
	MaxTries  int
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Command:   100 * time.Millisecond,
		Erase:     1000 * time.Millisecond,
		Handshake: 100 * time.Millisecond,
		MaxTries:  20,
	}
}
