package device

import (
	"fmt"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/pkg/register"
	log "github.com/sirupsen/logrus"
)

// A register name with the value to write
type Value struct {
	Name  string
	Value any
}

// Read a register by name, the returned value has the Go type
// of the register (uint8, float32, []float32, string ...)
func (d *Device) ReadRegister(name string) (any, error) {
	values, err := d.ReadRegisters(name)
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// Read a register by its raw id
func (d *Device) ReadRegisterByID(id uint16, t register.Type) (any, error) {
	desc, err := d.descriptorByID(id, t)
	if err != nil {
		return nil, err
	}
	log.Debugf("[MD][x%x] read register x%x", d.id, id)
	values, err := d.readDescriptors([]register.Descriptor{desc})
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// Read several registers in a single frame, values are returned in the
// order of names
func (d *Device) ReadRegisters(names ...string) ([]any, error) {
	descs, err := d.lookup(names)
	if err != nil {
		return nil, err
	}
	log.Debugf("[MD][x%x] read registers %v", d.id, names)
	return d.readDescriptors(descs)
}

func (d *Device) WriteRegister(name string, value any) error {
	return d.WriteRegisters(Value{Name: name, Value: value})
}

func (d *Device) WriteRegisterByID(id uint16, t register.Type, value any) error {
	desc, err := d.descriptorByID(id, t)
	if err != nil {
		return err
	}
	log.Debugf("[MD][x%x] write register x%x", d.id, id)
	return d.writeDescriptors([]register.Descriptor{desc}, []any{value})
}

// Write several registers in a single frame, in the given order
func (d *Device) WriteRegisters(values ...Value) error {
	names := make([]string, len(values))
	raw := make([]any, len(values))
	for i, v := range values {
		names[i] = v.Name
		raw[i] = v.Value
	}
	descs, err := d.lookup(names)
	if err != nil {
		return err
	}
	log.Debugf("[MD][x%x] write registers %v", d.id, names)
	return d.writeDescriptors(descs, raw)
}

func (d *Device) lookup(names []string) ([]register.Descriptor, error) {
	if len(names) == 0 {
		return nil, candle.ErrInvalidArgs
	}
	descs := make([]register.Descriptor, len(names))
	for i, name := range names {
		desc, err := d.dict.Lookup(name)
		if err != nil {
			return nil, err
		}
		descs[i] = desc
	}
	return descs, nil
}

func readAs[T any](d *Device, name string) (T, error) {
	var zero T
	value, err := d.ReadRegister(name)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w : %v holds %T not %T", candle.ErrTypeMismatch, name, value, zero)
	}
	return typed, nil
}

func (d *Device) ReadU8(name string) (uint8, error) {
	return readAs[uint8](d, name)
}

func (d *Device) ReadU16(name string) (uint16, error) {
	return readAs[uint16](d, name)
}

func (d *Device) ReadU32(name string) (uint32, error) {
	return readAs[uint32](d, name)
}

func (d *Device) ReadFloat(name string) (float32, error) {
	return readAs[float32](d, name)
}

func (d *Device) ReadString(name string) (string, error) {
	return readAs[string](d, name)
}

func (d *Device) ReadFloatArray(name string) ([]float32, error) {
	return readAs[[]float32](d, name)
}

func (d *Device) ReadU8Array(name string) ([]uint8, error) {
	return readAs[[]uint8](d, name)
}

// Write a whole array register, partial writes are not supported
func (d *Device) WriteArray(name string, values any) error {
	desc, err := d.dict.Lookup(name)
	if err != nil {
		return err
	}
	if !desc.Type.IsArray() {
		return fmt.Errorf("%w : %v is not an array", candle.ErrTypeMismatch, name)
	}
	return d.WriteRegister(name, values)
}

func (d *Device) WriteString(name string, value string) error {
	desc, err := d.dict.Lookup(name)
	if err != nil {
		return err
	}
	if !desc.Type.IsString() {
		return fmt.Errorf("%w : %v is not a string", candle.ErrTypeMismatch, name)
	}
	return d.WriteRegister(name, value)
}
