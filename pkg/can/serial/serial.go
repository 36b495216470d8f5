package serial

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/samsamfire/gocandle/internal/crc"
	"github.com/samsamfire/gocandle/internal/fifo"
	can "github.com/samsamfire/gocandle/pkg/can"
	log "github.com/sirupsen/logrus"
	bugserial "go.bug.st/serial"
)

// CAN-over-serial adapter (USB CDC bridges)
// Each frame is exchanged as a record :
//
//	sync(0xAA) | id (u32 LE) | flags | dlc | data[dlc] | crc16 (LE)
//
// crc16 covers id..data.

func init() {
	can.RegisterInterface("serial", NewSerialBus)
}

const (
	syncByte       = 0xAA
	headerLength   = 7 // sync + id + flags + dlc
	trailerLength  = 2
	defaultBitrate = 921600
	readTimeout    = 50 * time.Millisecond

	maxRecordLength = headerLength + can.MaxDataLength + trailerLength
	rxBufferSize    = 4 * maxRecordLength
)

var (
	ErrBadSync = errors.New("serial record does not start with sync byte")
	ErrBadCRC  = errors.New("serial record crc mismatch")
	ErrShort   = errors.New("serial record truncated")
)

type Bus struct {
	mu         sync.Mutex
	device     string
	baudrate   int
	port       bugserial.Port
	rxCallback can.FrameListener
	stopChan   chan struct{}
	wg         sync.WaitGroup
	isRunning  bool
}

func NewSerialBus(device string, bitrate int) (can.Bus, error) {
	if bitrate <= 0 {
		bitrate = defaultBitrate
	}
	return &Bus{device: device, baudrate: bitrate}, nil
}

// Encode a frame into a serial record
func EncodeRecord(frame can.Frame) ([]byte, error) {
	if frame.DLC > can.MaxDataLength {
		return nil, can.ErrFrameTooLong
	}
	record := make([]byte, headerLength+int(frame.DLC)+trailerLength)
	record[0] = syncByte
	binary.LittleEndian.PutUint32(record[1:5], frame.ID)
	record[5] = frame.Flags
	record[6] = frame.DLC
	copy(record[headerLength:], frame.Payload())
	checksum := crc.CRC16(0)
	checksum.Block(record[1 : headerLength+int(frame.DLC)])
	binary.LittleEndian.PutUint16(record[headerLength+int(frame.DLC):], uint16(checksum))
	return record, nil
}

// Decode one record from the beginning of buffer
// Returns the frame and the number of bytes consumed
func DecodeRecord(buffer []byte) (can.Frame, int, error) {
	if len(buffer) == 0 {
		return can.Frame{}, 0, ErrShort
	}
	if buffer[0] != syncByte {
		return can.Frame{}, 1, ErrBadSync
	}
	if len(buffer) < headerLength {
		return can.Frame{}, 0, ErrShort
	}
	dlc := int(buffer[6])
	if dlc > can.MaxDataLength {
		return can.Frame{}, 1, can.ErrFrameTooLong
	}
	total := headerLength + dlc + trailerLength
	if len(buffer) < total {
		return can.Frame{}, 0, ErrShort
	}
	checksum := crc.CRC16(0)
	checksum.Block(buffer[1 : headerLength+dlc])
	if uint16(checksum) != binary.LittleEndian.Uint16(buffer[headerLength+dlc:]) {
		return can.Frame{}, 1, ErrBadCRC
	}
	frame := can.Frame{
		ID:    binary.LittleEndian.Uint32(buffer[1:5]),
		Flags: buffer[5],
		DLC:   uint8(dlc),
	}
	copy(frame.Data[:], buffer[headerLength:headerLength+dlc])
	return frame, total, nil
}

// "Connect" opens the serial port
func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	port, err := bugserial.Open(b.device, &bugserial.Mode{
		BaudRate: b.baudrate,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	})
	if err != nil {
		return err
	}
	if err = port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return err
	}
	b.port = port
	b.stopChan = make(chan struct{})
	return nil
}

// "Disconnect" stops reception and closes the port
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	if b.port == nil {
		b.mu.Unlock()
		return nil
	}
	if b.isRunning {
		close(b.stopChan)
	}
	b.mu.Unlock()
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isRunning = false
	err := b.port.Close()
	b.port = nil
	return err
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame can.Frame) error {
	record, err := EncodeRecord(frame)
	if err != nil {
		return err
	}
	b.mu.Lock()
	port := b.port
	b.mu.Unlock()
	if port == nil {
		return io.ErrClosedPipe
	}
	_, err = port.Write(record)
	return err
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(rxCallback can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxCallback = rxCallback
	if b.isRunning || b.port == nil {
		return nil
	}
	b.isRunning = true
	b.wg.Add(1)
	go b.handleReception(b.port, b.stopChan)
	return nil
}

func (b *Bus) handleReception(port bugserial.Port, stop <-chan struct{}) {
	defer b.wg.Done()
	chunk := make([]byte, 256)
	record := make([]byte, maxRecordLength)
	pending := fifo.NewFifo(rxBufferSize)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.Read(chunk)
		if err != nil {
			log.Errorf("[SERIAL][%v] listening routine has closed because : %v", b.device, err)
			return
		}
		if written := pending.Write(chunk[:n]); written < n {
			log.Warnf("[SERIAL][%v] receive buffer full, dropped %v bytes", b.device, n-written)
		}
		for pending.Occupied() > 0 {
			frame, consumed, err := DecodeRecord(record[:pending.Peek(record)])
			if errors.Is(err, ErrShort) {
				break
			}
			pending.Discard(consumed)
			if err != nil {
				log.Debugf("[SERIAL][%v] dropped byte : %v", b.device, err)
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
}
