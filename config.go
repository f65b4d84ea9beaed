package raflash

import (
	"os"
)

const PORT_ENV = "RAFLASH_PORT"

// ResolvePort picks the serial device to talk to: an explicit path wins,
// then the environment, then sysfs discovery by USB vendor ID.
func ResolvePort(explicit string) (path string, err error) {
	if explicit != "" {
		path = explicit
		return
	}
	if env := os.Getenv(PORT_ENV); env != "" {
		path = env
		return
	}
	return FindPort()
}
