// Command candletool talks to drives and power distribution boards on a CAN bus.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/samsamfire/gocandle/pkg/register"
	"github.com/samsamfire/gocandle/pkg/transport"
	log "github.com/sirupsen/logrus"

	_ "github.com/samsamfire/gocandle/pkg/can/serial"
	_ "github.com/samsamfire/gocandle/pkg/can/socketcan"
	_ "github.com/samsamfire/gocandle/pkg/can/socketcanfd"
	_ "github.com/samsamfire/gocandle/pkg/can/virtual"
)

const usage = `usage: candletool [flags] <command> [args]

commands:
  discover                     list drives answering the probe
  scan-open [from] [to]        list CANopen nodes answering on SDO
  read <id> <register>         read a register by name
  write <id> <register> <value>
  sdo-read <node> <index> <sub>
  sdo-write <node> <index> <sub> <value>
  pds <id>                     show the modules of a power distribution board
  map <id> <csv> [nVoltage nRows nCols]
  registers                    list known register names
  shell                        interactive prompt keeping the bus open

flags:
`

var errUsage = errors.New("invalid usage")

type command struct {
	args int // Minimum number of arguments
	run  func(app *app, args []string) error
}

var commands = map[string]command{
	"discover":  {0, (*app).discover},
	"scan-open": {0, (*app).scanOpen},
	"read":      {2, (*app).read},
	"write":     {3, (*app).write},
	"sdo-read":  {3, (*app).sdoRead},
	"sdo-write": {4, (*app).sdoWrite},
	"pds":       {1, (*app).pds},
	"map":       {2, (*app).uploadMap},
	"registers": {0, (*app).registers},
}

type app struct {
	cfg       config
	out       io.Writer
	dict      *register.Dictionary
	transport *transport.Transport
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Error(err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("candletool", flag.ContinueOnError)
	flags.SetOutput(out)
	flags.Usage = func() {
		fmt.Fprint(out, usage)
		flags.PrintDefaults()
	}
	configPath := flags.String("config", "", "ini configuration file")
	canInterface := flags.String("i", "", "bus interface e.g. socketcan, socketcanfd, serial, virtual")
	channel := flags.String("c", "", "bus channel e.g. can0, /dev/ttyACM0")
	bitrate := flags.Int("b", 0, "bus bitrate")
	verbose := flags.Bool("v", false, "debug logs")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}

	log.SetLevel(log.WarnLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading %v : %w", *configPath, err)
		}
	}
	if *canInterface != "" {
		cfg.Interface = *canInterface
	}
	if *channel != "" {
		cfg.Channel = *channel
	}
	if *bitrate != 0 {
		cfg.Bitrate = *bitrate
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return errUsage
	}
	name, cmdArgs := flags.Arg(0), flags.Args()[1:]
	cmd, ok := commands[name]
	if !ok || len(cmdArgs) < cmd.args {
		flags.Usage()
		return errUsage
	}

	a := &app{cfg: cfg, out: out, dict: register.Default()}
	if cfg.Dictionary != "" {
		extra, err := register.ParseDictionary(cfg.Dictionary)
		if err != nil {
			return err
		}
		a.dict, err = a.dict.Merge(extra)
		if err != nil {
			return err
		}
	}
	if name != "registers" {
		t, err := transport.Open(cfg.Interface, cfg.Channel, cfg.Bitrate)
		if err != nil {
			return err
		}
		defer t.Disconnect()
		a.transport = t
	}
	return cmd.run(a, cmdArgs)
}

// Parse a decimal or 0x prefixed number
func parseUint(s string, bits int) (uint64, error) {
	value, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w : %q is not a %v bit number", errUsage, s, bits)
	}
	return value, nil
}
