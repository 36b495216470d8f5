// Package device implements register access to a single drive on a shared bus.
//
// Registers are addressed by name through a [register.Dictionary] or by raw
// id. Every operation is one request frame answered by exactly one response
// frame, there are no automatic retries.
package device

import (
	"fmt"
	"time"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/pkg/register"
	"github.com/samsamfire/gocandle/pkg/transport"
	log "github.com/sirupsen/logrus"
)

const DefaultTimeout = 100 * time.Millisecond

// Frame command codes
const (
	CmdWriteRegister uint8 = 0x40
	CmdReadRegister  uint8 = 0x41
	ResponseDefault  uint8 = 0xA0
)

const (
	headerSize     = 2
	addressSize    = 2
	maxRequestSize = 64
)

type Device struct {
	id        uint16
	transport *transport.Transport
	dict      *register.Dictionary
	timeout   time.Duration
}

type Option func(d *Device)

// Use dict instead of the default drive dictionary
func WithDictionary(dict *register.Dictionary) Option {
	return func(d *Device) {
		d.dict = dict
	}
}

// Response timeout used for every request
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) {
		d.timeout = timeout
	}
}

// Create a new device session for the drive with the given bus id
// No frame is sent until [Device.Init] or any other operation.
func New(t *transport.Transport, id uint16, opts ...Option) *Device {
	d := &Device{
		id:        id,
		transport: t,
		dict:      register.Default(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) ID() uint16 {
	return d.id
}

func (d *Device) Dictionary() *register.Dictionary {
	return d.dict
}

func (d *Device) Timeout() time.Duration {
	return d.timeout
}

// Copy of the device using another response timeout
// Both copies share the same transport and can be used interchangeably.
func (d *Device) WithTimeout(timeout time.Duration) *Device {
	copied := *d
	copied.timeout = timeout
	return &copied
}

// Liveness handshake, fails with [candle.ErrNotConnected] if the drive
// does not answer or reports no hardware version.
func (d *Device) Init() error {
	version, err := d.ReadU8(register.LegacyHardwareVersion)
	if err != nil {
		return fmt.Errorf("%w : x%x : %v", candle.ErrNotConnected, d.id, err)
	}
	if version == 0 {
		return fmt.Errorf("%w : x%x reports no hardware", candle.ErrNotConnected, d.id)
	}
	log.Infof("[MD][x%x] connected, hardware version %v", d.id, version)
	return nil
}

// Send a raw request to the device and wait for its response payload
func (d *Device) Transfer(request []byte) ([]byte, error) {
	if len(request) == 0 {
		return nil, candle.ErrInvalidArgs
	}
	log.Debugf("[MD][x%x][TX] % x", d.id, request)
	frame, err := d.transport.Exchange(uint32(d.id), request, transport.FromIDWithLength(uint32(d.id), 1), d.timeout)
	if err != nil {
		return nil, fmt.Errorf("[MD][x%x] transfer : %w", d.id, err)
	}
	response := make([]byte, frame.DLC)
	copy(response, frame.Payload())
	log.Debugf("[MD][x%x][RX] % x", d.id, response)
	return response, nil
}

func (d *Device) readDescriptors(descs []register.Descriptor) ([]any, error) {
	request := []byte{CmdReadRegister, 0x00}
	for _, desc := range descs {
		if !desc.Access.Readable() {
			return nil, fmt.Errorf("%w : %v is write only", candle.ErrAccessDenied, desc.Name)
		}
		request = append(request, byte(desc.ID), byte(desc.ID>>8))
		request = append(request, make([]byte, desc.Type.Width())...)
	}
	if len(request) > maxRequestSize {
		return nil, fmt.Errorf("%w : reading %d registers", candle.ErrFrameTooLong, len(descs))
	}
	response, err := d.Transfer(request)
	if err != nil {
		return nil, err
	}
	if response[0] != CmdReadRegister {
		return nil, fmt.Errorf("%w : read refused by x%x (x%x)", candle.ErrAccessDenied, d.id, response[0])
	}
	values := make([]any, len(descs))
	offset := headerSize
	for i, desc := range descs {
		width := desc.Type.Width()
		if len(response) < offset+addressSize+width {
			return nil, fmt.Errorf("%w : response too short for %v", candle.ErrMalformedPayload, desc.Name)
		}
		address := uint16(response[offset]) | uint16(response[offset+1])<<8
		if address != desc.ID {
			return nil, fmt.Errorf("%w : expected register x%x got x%x", candle.ErrMalformedPayload, desc.ID, address)
		}
		offset += addressSize
		values[i], err = register.Decode(desc.Type, response[offset:offset+width])
		if err != nil {
			return nil, err
		}
		offset += width
	}
	return values, nil
}

func (d *Device) writeDescriptors(descs []register.Descriptor, values []any) error {
	request := []byte{CmdWriteRegister, 0x00}
	for i, desc := range descs {
		if !desc.Access.Writable() {
			return fmt.Errorf("%w : %v is read only", candle.ErrAccessDenied, desc.Name)
		}
		encoded, err := register.Encode(desc.Type, values[i])
		if err != nil {
			return fmt.Errorf("%v : %w", desc.Name, err)
		}
		request = append(request, byte(desc.ID), byte(desc.ID>>8))
		request = append(request, encoded...)
	}
	if len(request) > maxRequestSize {
		return fmt.Errorf("%w : writing %d registers", candle.ErrFrameTooLong, len(descs))
	}
	response, err := d.Transfer(request)
	if err != nil {
		return err
	}
	if response[0] != ResponseDefault {
		return fmt.Errorf("%w : write refused by x%x (x%x)", candle.ErrAccessDenied, d.id, response[0])
	}
	return nil
}

// Descriptor for a raw id, taken from the dictionary when known
func (d *Device) descriptorByID(id uint16, t register.Type) (register.Descriptor, error) {
	desc, err := d.dict.LookupID(id)
	if err == nil {
		if desc.Type != t {
			return desc, fmt.Errorf("%w : %v is %v not %v", candle.ErrTypeMismatch, desc.Name, desc.Type, t)
		}
		return desc, nil
	}
	if !t.Valid() {
		return desc, fmt.Errorf("%w : invalid type %v", candle.ErrTypeMismatch, t)
	}
	return register.Descriptor{Name: fmt.Sprintf("x%x", id), ID: id, Type: t, Access: register.ReadWrite}, nil
}
