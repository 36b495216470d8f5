//go:build linux

// Package socketcanfd is a raw socketcan backend with CAN-FD frames enabled.
//
// Register frames of more than 8 bytes need this backend, the socketcan one
// only carries classic frames.
package socketcanfd

import (
	"errors"
	"fmt"
	"net"
	"sync"

	can "github.com/samsamfire/gocandle/pkg/can"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func init() {
	can.RegisterInterface("socketcanfd", NewBus)
}

// Receive timeout, bounds the time Disconnect waits for the reader
var readTimeout = unix.Timeval{Usec: 100_000}

type Bus struct {
	mu         sync.Mutex
	channel    string
	fd         int
	rxCallback can.FrameListener
	stop       chan struct{}
	wg         sync.WaitGroup
}

// Open a CAN-FD socket on channel. The interface must be up with FD enabled,
// e.g. "ip link set can0 up type can bitrate 1000000 dbitrate 5000000 fd on".
// bitrate is configured on the interface and ignored here.
func NewBus(channel string, bitrate int) (can.Bus, error) {
	return &Bus{channel: channel, fd: -1}, nil
}

// "Connect" opens the socket and starts reception
func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd >= 0 {
		return nil
	}
	iface, err := net.InterfaceByName(b.channel)
	if err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("failed to create CAN socket : %v", err)
	}
	setup := func() error {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
			return fmt.Errorf("failed to enable FD frames : %v", err)
		}
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &readTimeout); err != nil {
			return fmt.Errorf("failed to set read timeout : %v", err)
		}
		return unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index})
	}
	if err := setup(); err != nil {
		unix.Close(fd)
		return err
	}
	b.fd = fd
	b.stop = make(chan struct{})
	b.wg.Add(1)
	go b.processIncoming(fd, b.stop)
	log.Infof("[SOCKETCANFD][%v] connected", b.channel)
	return nil
}

// "Disconnect" stops reception and closes the socket
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	if b.fd < 0 {
		b.mu.Unlock()
		return nil
	}
	close(b.stop)
	b.mu.Unlock()
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame can.Frame) error {
	raw, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	b.mu.Lock()
	fd := b.fd
	b.mu.Unlock()
	if fd < 0 {
		return fmt.Errorf("socket %v not connected", b.channel)
	}
	n, err := unix.Write(fd, raw)
	if err != nil {
		return err
	}
	if n != len(raw) {
		return fmt.Errorf("short write of %v bytes", n)
	}
	return nil
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(rxCallback can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxCallback = rxCallback
	return nil
}

// Enable own reception on the bus, useful for testing
func (b *Bus) SetReceiveOwn(enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	return unix.SetsockoptInt(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, value)
}

// Only receive frames matching filters
func (b *Bus) SetFilters(filters []unix.CanFilter) error {
	return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}

func (b *Bus) processIncoming(fd int, stop <-chan struct{}) {
	defer b.wg.Done()
	raw := make([]byte, canfdMTU)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := unix.Read(fd, raw)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			log.Errorf("[SOCKETCANFD][%v] listening routine has closed because : %v", b.channel, err)
			return
		}
		frame, err := decodeFrame(raw[:n])
		if err != nil {
			log.Warnf("[SOCKETCANFD][%v] dropped frame : %v", b.channel, err)
			continue
		}
		b.mu.Lock()
		callback := b.rxCallback
		b.mu.Unlock()
		if callback != nil {
			callback.Handle(frame)
		}
	}
}
