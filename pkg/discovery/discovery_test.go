package discovery

import (
	"testing"
	"time"

	"github.com/samsamfire/gocandle/internal/sim"
	"github.com/samsamfire/gocandle/pkg/can/virtual"
	"github.com/samsamfire/gocandle/pkg/device"
	"github.com/samsamfire/gocandle/pkg/od"
	"github.com/samsamfire/gocandle/pkg/register"
	"github.com/samsamfire/gocandle/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 50 * time.Millisecond

func createTransportTest(t *testing.T) *transport.Transport {
	tr := transport.New(virtual.New(t.Name()))
	require.Nil(t, tr.Connect())
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func TestDiscoverEmptyBus(t *testing.T) {
	tr := createTransportTest(t)
	ids, err := Discover(tr, testWindow)
	assert.Nil(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestDiscoverDevices(t *testing.T) {
	tr := createTransportTest(t)
	expected := []uint16{0x64, 0x65, 0x66, 0x100, 0x7FF}
	for _, id := range expected[:4] {
		md := sim.StartMD(t.Name(), id)
		defer md.Close()
	}
	pds := sim.StartPDS(t.Name(), expected[4])
	defer pds.Close()
	silent := sim.StartMD(t.Name(), 0x70)
	silent.SetSilent(true)
	defer silent.Close()

	ids, err := Discover(tr, testWindow)
	assert.Nil(t, err)
	assert.ElementsMatch(t, expected, ids)

	// Same result on a second scan
	ids, err = Discover(tr, testWindow)
	assert.Nil(t, err)
	assert.ElementsMatch(t, expected, ids)
}

func TestDiscoverIgnoresMalformed(t *testing.T) {
	tr := createTransportTest(t)
	md := sim.StartMD(t.Name(), 0x20)
	defer md.Close()
	for _, r := range []*sim.Responder{
		sim.StartResponder(t.Name(), 0x21, []byte{0x06, 0x00}, true),
		sim.StartResponder(t.Name(), 0x22, []byte{0x05}, true),
		sim.StartResponder(t.Name(), 0x800, []byte{0x05, 0x00}, true),
	} {
		defer r.Close()
	}
	// Answers twice, reported once
	twice := sim.StartResponder(t.Name(), 0x23, []byte{0x05, 0x00}, true)
	defer twice.Close()
	echo := sim.StartResponder(t.Name(), 0x23, []byte{0x05, 0x00}, true)
	defer echo.Close()

	ids, err := Discover(tr, testWindow)
	assert.Nil(t, err)
	assert.ElementsMatch(t, []uint16{0x20, 0x23}, ids)
}

func TestDiscoverHoldsTransport(t *testing.T) {
	tr := createTransportTest(t)
	md := sim.StartMD(t.Name(), 0x30)
	defer md.Close()
	d := device.New(tr, 0x30)

	started := make(chan struct{})
	done := make(chan []uint16, 1)
	go func() {
		close(started)
		ids, _ := Discover(tr, 100*time.Millisecond)
		done <- ids
	}()
	<-started
	time.Sleep(10 * time.Millisecond)
	start := time.Now()
	_, err := d.WithTimeout(time.Second).ReadU32(register.CanID)
	assert.Nil(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, []uint16{0x30}, <-done)
}

func TestScanOpen(t *testing.T) {
	tr := createTransportTest(t)
	for _, id := range []uint8{3, 5} {
		bus := virtual.New(t.Name())
		defer bus.Disconnect()
		require.Nil(t, bus.Subscribe(sim.NewSdoServer(bus, id, od.Default())))
	}
	// Node without object 0x1000 still answers
	bus := virtual.New(t.Name())
	defer bus.Disconnect()
	require.Nil(t, bus.Subscribe(sim.NewSdoServer(bus, 7, nil)))

	nodes, err := ScanOpen(tr, 1, 8, 10*time.Millisecond)
	assert.Nil(t, err)
	assert.Equal(t, []OpenNode{{3, 0x192}, {5, 0x192}, {7, 0}}, nodes)

	_, err = ScanOpen(tr, 0, 8, time.Millisecond)
	assert.NotNil(t, err)
	_, err = ScanOpen(tr, 9, 8, time.Millisecond)
	assert.NotNil(t, err)
}
