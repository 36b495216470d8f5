package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/samsamfire/gocandle/pkg/device"
	"github.com/samsamfire/gocandle/pkg/discovery"
	"github.com/samsamfire/gocandle/pkg/dqmap"
	"github.com/samsamfire/gocandle/pkg/od"
	"github.com/samsamfire/gocandle/pkg/pds"
	"github.com/samsamfire/gocandle/pkg/register"
	"github.com/samsamfire/gocandle/pkg/sdo"
)

func (a *app) device(arg string) (*device.Device, error) {
	id, err := parseUint(arg, 11)
	if err != nil {
		return nil, err
	}
	return device.New(a.transport, uint16(id),
		device.WithDictionary(a.dict),
		device.WithTimeout(a.cfg.RequestTimeout),
	), nil
}

func (a *app) sdoClient(arg string) (*sdo.Client, error) {
	id, err := parseUint(arg, 7)
	if err != nil {
		return nil, err
	}
	client, err := sdo.NewClient(a.transport, uint8(id), od.Default())
	if err != nil {
		return nil, err
	}
	return client.WithTimeout(a.cfg.RequestTimeout), nil
}

func (a *app) discover(args []string) error {
	ids, err := discovery.Discover(a.transport, a.cfg.DiscoveryTimeout)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "no drive found")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintf(a.out, "drive 0x%x\n", id)
	}
	return nil
}

func (a *app) scanOpen(args []string) error {
	from, to := uint64(1), uint64(127)
	var err error
	if len(args) > 0 {
		if from, err = parseUint(args[0], 7); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if to, err = parseUint(args[1], 7); err != nil {
			return err
		}
	}
	nodes, err := discovery.ScanOpen(a.transport, uint8(from), uint8(to), discovery.DefaultPerNode)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		fmt.Fprintf(a.out, "node 0x%x device type 0x%08x\n", node.ID, node.DeviceType)
	}
	return nil
}

func (a *app) read(args []string) error {
	dev, err := a.device(args[0])
	if err != nil {
		return err
	}
	value, err := dev.ReadRegister(args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%v = %v\n", args[1], value)
	return nil
}

func (a *app) write(args []string) error {
	dev, err := a.device(args[0])
	if err != nil {
		return err
	}
	desc, err := a.dict.Lookup(args[1])
	if err != nil {
		return err
	}
	value, err := register.ParseValue(desc.Type, args[2])
	if err != nil {
		return err
	}
	return dev.WriteRegister(desc.Name, value)
}

func parseObject(index string, sub string) (uint16, uint8, error) {
	i, err := parseUint(index, 16)
	if err != nil {
		return 0, 0, err
	}
	s, err := parseUint(sub, 8)
	if err != nil {
		return 0, 0, err
	}
	return uint16(i), uint8(s), nil
}

func (a *app) sdoRead(args []string) error {
	client, err := a.sdoClient(args[0])
	if err != nil {
		return err
	}
	index, sub, err := parseObject(args[1], args[2])
	if err != nil {
		return err
	}
	entry, err := client.Dictionary().Entry(index, sub)
	if err != nil {
		data, err := client.Raw().ReadLong(index, sub)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "x%x:x%x = % x\n", index, sub, data)
		return nil
	}
	data, err := client.ReadLong(index, sub)
	if err != nil {
		return err
	}
	value, err := od.DecodeToString(data, entry.DataType, 10)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%v = %v\n", entry.Name, value)
	return nil
}

func (a *app) sdoWrite(args []string) error {
	client, err := a.sdoClient(args[0])
	if err != nil {
		return err
	}
	index, sub, err := parseObject(args[1], args[2])
	if err != nil {
		return err
	}
	entry, err := client.Dictionary().Entry(index, sub)
	if err == nil && entry.Segmented() {
		data, err := od.EncodeFromString(args[3], entry.DataType)
		if err != nil {
			return err
		}
		return client.WriteLong(index, sub, data)
	}
	value, err := strconv.ParseInt(args[3], 0, 64)
	if err != nil {
		return fmt.Errorf("%w : %q is not a number", errUsage, args[3])
	}
	if entry == nil {
		return client.Raw().WriteShort(index, sub, value, 4)
	}
	return client.WriteShort(index, sub, value, 0)
}

func (a *app) pds(args []string) error {
	dev, err := a.device(args[0])
	if err != nil {
		return err
	}
	board := pds.New(dev)
	modules, err := board.Modules()
	if err != nil {
		return err
	}
	voltage, err := board.BusVoltage()
	if err != nil {
		return err
	}
	temperature, err := board.Temperature()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "bus voltage %.3f V, temperature %.1f °C\n", float32(voltage)/1000, temperature)
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOCKET\tMODULE")
	for i, module := range modules {
		fmt.Fprintf(w, "%v\t%v\n", i+1, module)
	}
	return w.Flush()
}

func (a *app) uploadMap(args []string) error {
	dev, err := a.device(args[0])
	if err != nil {
		return err
	}
	dims := []int{register.MapVoltageCount, register.MapTorqueCount, register.MapVelocityCount}
	for i := range dims {
		if len(args) > 2+i {
			value, err := parseUint(args[2+i], 8)
			if err != nil {
				return err
			}
			dims[i] = int(value)
		}
	}
	file, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer file.Close()
	m, err := dqmap.ParseCSV(file, dims[0], dims[1], dims[2])
	if err != nil {
		return err
	}
	err = dqmap.Upload(dev, m, dqmap.WithProgress(func(done, total int) {
		fmt.Fprintf(a.out, "\r%v/%v rows", done, total)
	}))
	fmt.Fprintln(a.out)
	if err != nil {
		return err
	}
	return dqmap.EnableMaps(dev)
}

func (a *app) registers(args []string) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tTYPE\tACCESS")
	for _, name := range a.dict.Names() {
		desc, _ := a.dict.Lookup(name)
		fmt.Fprintf(w, "%v\t0x%03x\t%v\t%v\n", desc.Name, desc.ID, desc.Type, desc.Access)
	}
	return w.Flush()
}
