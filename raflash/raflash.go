package main

/*
* CLI for the RA flasher
 */

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"github.com/urfave/cli"

	"raflash.co/raflash"
)

func PrintFatal(msg string, args ...interface{}) {
	PrintErr(msg, args...)
	os.Exit(1)
}

func PrintErr(msg string, args ...interface{}) {
	os.Stderr.WriteString(fmt.Sprintf(msg, args...) + "\n")
}

func parseHex(s string) (value uint32, err error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	parsed, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		err = fmt.Errorf("'%s' is not a valid hexadecimal value", s)
		return
	}
	value = uint32(parsed)
	return
}

// connect opens the serial port, establishes the boot session and loads
// the chip layout. The caller owns the returned session.
func connect(c *cli.Context) (sess *raflash.Session, err error) {
	path, err := raflash.ResolvePort(c.GlobalString("port"))
	if err != nil {
		return
	}
	port, err := raflash.OpenSerial(path, raflash.DEFAULT_BAUD_RATE)
	if err != nil {
		return
	}
	sess = raflash.NewSession(port)
	if err = sess.Open(); err != nil {
		sess.Close()
		sess = nil
		return
	}
	layout, err := sess.GetAreaInfo()
	if err != nil {
		sess.Close()
		sess = nil
		return
	}
	if err = sess.SetChipLayout(layout); err != nil {
		sess.Close()
		sess = nil
		return
	}
	return
}

func infoCommand(c *cli.Context) (err error) {
	sess, err := connect(c)
	if err != nil {
		PrintFatal(err.Error())
	}
	defer sess.Close()

	info, err := sess.GetDevInfo()
	if err != nil {
		PrintFatal(err.Error())
	}

	fmt.Println("====================")
	fmt.Println(raflash.Cyan(info.Series()))
	fmt.Printf("Serial interface speed: %d Hz\n", info.SCI)
	fmt.Printf("Recommended max UART baud rate: %d bps\n", info.RMB)
	fmt.Printf("User area in Code flash [%d|%d]\n", info.NOA&0x1, (info.NOA&0x2)>>1)
	fmt.Printf("User area in Data flash [%d]\n", (info.NOA&0x4)>>2)
	fmt.Printf("Config area [%d]\n", (info.NOA&0x8)>>3)
	fmt.Printf("Boot firmware: version %s\n", info.BootVersion())
	if !info.BootFirmwareTested() {
		PrintErr(raflash.Yellow("Warning: boot firmware older than any revision this tool was tested against"))
	}

	layout := sess.Layout()
	for i := 0; i < len(layout); i++ {
		fmt.Println(layout[i].String())
	}
	return
}

func eraseCommand(c *cli.Context) (err error) {
	start, err := parseHex(c.String("start_address"))
	if err != nil {
		PrintFatal(err.Error())
	}
	sess, err := connect(c)
	if err != nil {
		PrintFatal(err.Error())
	}
	defer sess.Close()

	size, err := sizeOrAreaRemainder(sess, c.String("size"), start)
	if err != nil {
		PrintFatal(err.Error())
	}
	if err = sess.Erase(start, size); err != nil {
		PrintFatal(err.Error())
	}
	fmt.Println(raflash.Green("Erase complete ✔"))
	return
}

func writeCommand(c *cli.Context) (err error) {
	if c.NArg() < 1 {
		PrintFatal("no image file given")
	}
	fileName := c.Args().First()
	start, err := parseHex(c.String("start_address"))
	if err != nil {
		PrintFatal(err.Error())
	}

	file, err := os.Open(fileName)
	if err != nil {
		PrintFatal("file %s does not exist", fileName)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		PrintFatal(err.Error())
	}
	fileSize := uint32(stat.Size())

	size := fileSize
	if c.String("size") != "" {
		if size, err = parseHex(c.String("size")); err != nil {
			PrintFatal(err.Error())
		}
	}
	if size > fileSize {
		PrintFatal("write size 0x%X exceeds file size 0x%X", size, fileSize)
	}

	sess, err := connect(c)
	if err != nil {
		PrintFatal(err.Error())
	}
	defer sess.Close()

	if err = sess.WriteImage(file, start, size); err != nil {
		PrintFatal(err.Error())
	}
	fmt.Println(raflash.Green("Write complete ✔"))

	if c.Bool("verify") {
		if _, err = file.Seek(0, 0); err != nil {
			PrintFatal(err.Error())
		}
		if err = sess.Verify(file, start, size); err != nil {
			PrintFatal(err.Error())
		}
		fmt.Println(raflash.Green("Verify complete ✔"))
	}
	return
}

func readCommand(c *cli.Context) (err error) {
	if c.NArg() < 1 {
		PrintFatal("no output file given")
	}
	fileName := c.Args().First()
	start, err := parseHex(c.String("start_address"))
	if err != nil {
		PrintFatal(err.Error())
	}

	sess, err := connect(c)
	if err != nil {
		PrintFatal(err.Error())
	}
	defer sess.Close()

	size, err := sizeOrAreaRemainder(sess, c.String("size"), start)
	if err != nil {
		PrintFatal(err.Error())
	}

	file, err := os.Create(fileName)
	if err != nil {
		PrintFatal(err.Error())
	}
	defer file.Close()

	if err = sess.ReadImage(file, start, size); err != nil {
		PrintFatal(err.Error())
	}
	//	the final packet is device padded; keep only what was asked for
	if err = file.Truncate(int64(size)); err != nil {
		PrintFatal(err.Error())
	}
	fmt.Println(raflash.Green("Read complete ✔"))
	return
}

// sizeOrAreaRemainder parses the size flag, defaulting to everything from
// start to the end of the active area.
func sizeOrAreaRemainder(sess *raflash.Session, flag string, start uint32) (size uint32, err error) {
	if flag != "" {
		return parseHex(flag)
	}
	area, err := sess.ActiveArea()
	if err != nil {
		return
	}
	if start > area.EAD {
		err = fmt.Errorf("start address 0x%X beyond end of area 0x%X", start, area.EAD)
		return
	}
	size = area.EAD - start + 1
	return
}

func main() {
	logger := raflash.SetupLogging("raflash", logging.NOTICE, false)

	app := cli.NewApp()
	app.Name = "raflash"
	app.Usage = "RA Flasher Tool"
	app.Version = "0.4.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "port",
			Usage: "serial device path (default: detect by USB vendor ID)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "info",
			Usage:  "Show device signature and area table",
			Action: infoCommand,
		},
		{
			Name:  "erase",
			Usage: "Erase sectors",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "start_address", Value: "0x0000", Usage: "Start address"},
				cli.StringFlag{Name: "size", Usage: "Size in bytes (default: to end of area)"},
			},
			Action: eraseCommand,
		},
		{
			Name:      "write",
			Usage:     "Write data to flash",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "start_address", Value: "0x0000", Usage: "Start address"},
				cli.StringFlag{Name: "size", Usage: "Size in bytes (default: file size)"},
				cli.BoolFlag{Name: "verify", Usage: "Verify after writing"},
			},
			Action: writeCommand,
		},
		{
			Name:      "read",
			Usage:     "Read data from flash",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "start_address", Value: "0x0000", Usage: "Start address"},
				cli.StringFlag{Name: "size", Usage: "Size in bytes (default: to end of area)"},
			},
			Action: readCommand,
		},
	}

	raflash.RecoverToLog(func() {
		if err := app.Run(os.Args); err != nil {
			PrintFatal(err.Error())
		}
	}, logger)
}
