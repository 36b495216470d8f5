package pds

import (
	"encoding/binary"
	"fmt"

	candle "github.com/samsamfire/gocandle"
)

// Property frame commands
const (
	CmdGetProperties byte = 0x20
	CmdSetProperties byte = 0x21
)

const (
	requestHeaderSize  = 4
	responseHeaderSize = 2
	propertySize       = 5
	maxFrameSize       = 64
	// Bounded by the response of a get request
	maxProperties = (maxFrameSize - responseHeaderSize) / propertySize
)

type Property uint8

const (
	PropStatusWord       Property = 0x00
	PropStatusClear      Property = 0x01
	PropEnable           Property = 0x02
	PropTemperature      Property = 0x03
	PropTemperatureLimit Property = 0x04
	PropBusVoltage       Property = 0x05
	PropLoadCurrent      Property = 0x10
	PropLoadPower        Property = 0x11
	PropTotalEnergy      Property = 0x12
	PropCanID            Property = 0x20
	PropCanBaudrate      Property = 0x21
	PropSocket1Module    Property = 0x22 // Followed by one property per socket
	PropBrSocketIndex    Property = 0x30
	PropBrTriggerVoltage Property = 0x31
	PropOcdLevel         Property = 0x40
	PropOcdDelay         Property = 0x41
)

type propertyValue struct {
	property Property
	value    uint32
}

func socketModuleProperty(socket int) Property {
	return PropSocket1Module + Property(socket-1)
}

// Read properties of the module of type t in socket, in one frame
func (p *PDS) getProperties(t ModuleType, socket int, properties ...Property) ([]uint32, error) {
	if len(properties) == 0 || len(properties) > maxProperties {
		return nil, fmt.Errorf("%w : %v properties", candle.ErrInvalidArgs, len(properties))
	}
	request := []byte{CmdGetProperties, byte(t), byte(socket), byte(len(properties))}
	for _, property := range properties {
		request = append(request, byte(property))
	}
	response, err := p.dev.Transfer(request)
	if err != nil {
		return nil, err
	}
	if response[0] != 0 {
		return nil, fmt.Errorf("%w : %v socket %v refused get (status x%x)", candle.ErrAccessDenied, t, socket, response[0])
	}
	// Padding after the last property is allowed
	if len(response) < responseHeaderSize+propertySize*len(properties) || int(response[1]) != len(properties) {
		return nil, fmt.Errorf("%w : get response of %v bytes for %v properties", candle.ErrMalformedPayload, len(response), len(properties))
	}
	values := make([]uint32, len(properties))
	for i, property := range properties {
		offset := responseHeaderSize + propertySize*i
		if Property(response[offset]) != property {
			return nil, fmt.Errorf("%w : expected property x%x got x%x", candle.ErrMalformedPayload, property, response[offset])
		}
		values[i] = binary.LittleEndian.Uint32(response[offset+1:])
	}
	return values, nil
}

func (p *PDS) getProperty(t ModuleType, socket int, property Property) (uint32, error) {
	values, err := p.getProperties(t, socket, property)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// Write properties of the module of type t in socket, in one frame
func (p *PDS) setProperties(t ModuleType, socket int, values ...propertyValue) error {
	if len(values) == 0 || requestHeaderSize+propertySize*len(values) > maxFrameSize {
		return fmt.Errorf("%w : %v properties", candle.ErrInvalidArgs, len(values))
	}
	request := []byte{CmdSetProperties, byte(t), byte(socket), byte(len(values))}
	for _, v := range values {
		request = append(request, byte(v.property))
		request = binary.LittleEndian.AppendUint32(request, v.value)
	}
	response, err := p.dev.Transfer(request)
	if err != nil {
		return err
	}
	if response[0] != 0 {
		return fmt.Errorf("%w : %v socket %v refused set (status x%x)", candle.ErrAccessDenied, t, socket, response[0])
	}
	if len(response) != 1 {
		return fmt.Errorf("%w : set response of %v bytes", candle.ErrMalformedPayload, len(response))
	}
	return nil
}

func (p *PDS) setProperty(t ModuleType, socket int, property Property, value uint32) error {
	return p.setProperties(t, socket, propertyValue{property, value})
}
