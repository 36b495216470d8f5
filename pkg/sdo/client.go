// Package sdo implements a CANopen SDO client for the drive object dictionary.
//
// Values up to 4 bytes use expedited transfers, longer values use segmented
// transfers of [SegmentSize] bytes with an alternating toggle bit. Every
// request goes through the shared transport, so a whole segmented transfer
// holds the transaction slot until it completes or aborts.
package sdo

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	candle "github.com/samsamfire/gocandle"
	"github.com/samsamfire/gocandle/pkg/od"
	"github.com/samsamfire/gocandle/pkg/register"
	"github.com/samsamfire/gocandle/pkg/transport"
	log "github.com/sirupsen/logrus"
)

type Client struct {
	mu                  sync.Mutex
	transport           *transport.Transport
	od                  *od.ObjectDictionary
	nodeId              uint8
	timeout             time.Duration
	state               State
	cobIdClientToServer uint32
	cobIdServerToClient uint32
}

// Create a client for the SDO server of nodeId.
// dict is used for access checks and name lookups, it can be nil in which
// case every object is accessed raw.
func NewClient(t *transport.Transport, nodeId uint8, dict *od.ObjectDictionary) (*Client, error) {
	if t == nil || nodeId == 0 || nodeId > 127 {
		return nil, fmt.Errorf("%w : node id x%x", candle.ErrInvalidArgs, nodeId)
	}
	return &Client{
		transport:           t,
		od:                  dict,
		nodeId:              nodeId,
		timeout:             DefaultTimeout,
		cobIdClientToServer: ClientBaseId + uint32(nodeId),
		cobIdServerToClient: ServerBaseId + uint32(nodeId),
	}, nil
}

func (c *Client) clone() *Client {
	return &Client{
		transport:           c.transport,
		od:                  c.od,
		nodeId:              c.nodeId,
		timeout:             c.timeout,
		cobIdClientToServer: c.cobIdClientToServer,
		cobIdServerToClient: c.cobIdServerToClient,
	}
}

// Copy of the client with another per frame timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	copied := c.clone()
	copied.timeout = timeout
	return copied
}

// Copy of the client that skips object dictionary checks
func (c *Client) Raw() *Client {
	copied := c.clone()
	copied.od = nil
	return copied
}

func (c *Client) NodeId() uint8 {
	return c.nodeId
}

func (c *Client) Dictionary() *od.ObjectDictionary {
	return c.od
}

// State of the last transaction
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) checkRead(index uint16, subIndex uint8) (*od.Entry, error) {
	if c.od == nil {
		return nil, nil
	}
	entry, err := c.od.Entry(index, subIndex)
	if err != nil {
		return nil, err
	}
	if !entry.Readable() {
		return nil, fmt.Errorf("%w : %v is not readable", candle.ErrAccessDenied, entry)
	}
	return entry, nil
}

func (c *Client) checkWrite(index uint16, subIndex uint8) (*od.Entry, error) {
	if c.od == nil {
		return nil, nil
	}
	entry, err := c.od.Entry(index, subIndex)
	if err != nil {
		return nil, err
	}
	if !entry.Writable() {
		return nil, fmt.Errorf("%w : %v is not writable", candle.ErrAccessDenied, entry)
	}
	return entry, nil
}

// Read an object of at most 4 bytes.
// The value is sign extended when the dictionary declares a signed type.
func (c *Client) ReadShort(index uint16, subIndex uint8) (int32, error) {
	entry, err := c.checkRead(index, subIndex)
	if err != nil {
		return 0, err
	}
	data, err := c.upload(index, subIndex)
	if err != nil {
		return 0, err
	}
	if entry != nil && entry.Width() > 0 && entry.Width() < len(data) {
		// Expedited responses without size indication carry 4 bytes
		data = data[:entry.Width()]
	}
	raw, err := shortValue(data)
	if err != nil {
		return 0, err
	}
	if entry != nil && entry.Signed() {
		return register.SignExtend(raw, 8*len(data)), nil
	}
	return int32(raw), nil
}

// Read an object of at most 4 bytes and sign extend it from bits
func (c *Client) ReadSigned(index uint16, subIndex uint8, bits int) (int32, error) {
	if bits != 8 && bits != 16 && bits != 32 {
		return 0, fmt.Errorf("%w : %v bits", candle.ErrInvalidArgs, bits)
	}
	if _, err := c.checkRead(index, subIndex); err != nil {
		return 0, err
	}
	data, err := c.upload(index, subIndex)
	if err != nil {
		return 0, err
	}
	raw, err := shortValue(data)
	if err != nil {
		return 0, err
	}
	return register.SignExtend(raw, bits), nil
}

func shortValue(data []byte) (uint32, error) {
	if len(data) == 0 || len(data) > 4 {
		return 0, fmt.Errorf("%w : %v bytes for a short read", candle.ErrMalformedPayload, len(data))
	}
	var padded [4]byte
	copy(padded[:], data)
	return binary.LittleEndian.Uint32(padded[:]), nil
}

// Write value on width bytes (1, 2 or 4) with an expedited transfer.
// A width of 0 takes the width declared in the dictionary.
func (c *Client) WriteShort(index uint16, subIndex uint8, value int64, width int) error {
	entry, err := c.checkWrite(index, subIndex)
	if err != nil {
		return err
	}
	if width == 0 {
		if entry == nil {
			return fmt.Errorf("%w : no width for x%x:x%x without dictionary", candle.ErrInvalidArgs, index, subIndex)
		}
		width = entry.Width()
	}
	if width != 1 && width != 2 && width != 4 {
		return fmt.Errorf("%w : width %v", candle.ErrInvalidArgs, width)
	}
	bits := 8 * width
	if value < -(int64(1)<<(bits-1)) || value > (int64(1)<<bits)-1 {
		return fmt.Errorf("%w : %v does not fit in %v bytes", candle.ErrTypeMismatch, value, width)
	}
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], uint32(value))
	return c.downloadExpedited(index, subIndex, data[:width])
}

// Read an object of any size, expedited responses are accepted
func (c *Client) ReadLong(index uint16, subIndex uint8) ([]byte, error) {
	if _, err := c.checkRead(index, subIndex); err != nil {
		return nil, err
	}
	return c.upload(index, subIndex)
}

// Write data with a segmented transfer
func (c *Client) WriteLong(index uint16, subIndex uint8, data []byte) error {
	if _, err := c.checkWrite(index, subIndex); err != nil {
		return err
	}
	return c.downloadSegmented(index, subIndex, data)
}

func (c *Client) lookup(name string) (*od.Entry, error) {
	if c.od == nil {
		return nil, fmt.Errorf("%w : no dictionary to look up %q", candle.ErrUnknownIndex, name)
	}
	return c.od.Lookup(name)
}

// Read an object by its dictionary name.
// Returns a uint64, int64, float64 or string depending on the object type.
func (c *Client) ReadByName(name string) (any, error) {
	entry, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	if !entry.Readable() {
		return nil, fmt.Errorf("%w : %v is not readable", candle.ErrAccessDenied, entry)
	}
	data, err := c.upload(entry.Index, entry.SubIndex)
	if err != nil {
		return nil, err
	}
	if size := od.DataTypeSize(entry.DataType); size > 0 && len(data) > size {
		// Expedited responses without size indication carry 4 bytes
		data = data[:size]
	}
	value, err := od.DecodeToType(data, entry.DataType)
	if s, ok := value.(string); ok {
		return strings.TrimRight(s, "\x00"), err
	}
	return value, err
}

// Write an object by its dictionary name.
// value is either a string parsed like an EDS value or any Go value
// whose default formatting can be parsed that way.
func (c *Client) WriteByName(name string, value any) error {
	entry, err := c.lookup(name)
	if err != nil {
		return err
	}
	if !entry.Writable() {
		return fmt.Errorf("%w : %v is not writable", candle.ErrAccessDenied, entry)
	}
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	data, err := od.EncodeFromString(s, entry.DataType)
	if err != nil {
		return fmt.Errorf("%w : %v", candle.ErrTypeMismatch, err)
	}
	if entry.Segmented() {
		return c.downloadSegmented(entry.Index, entry.SubIndex, data)
	}
	return c.downloadExpedited(entry.Index, entry.SubIndex, data)
}

func header(command uint8, index uint16, subIndex uint8) [8]byte {
	return [8]byte{command, byte(index), byte(index >> 8), subIndex}
}

func sameObject(response [8]byte, index uint16, subIndex uint8) bool {
	return binary.LittleEndian.Uint16(response[1:3]) == index && response[3] == subIndex
}

// Send a request and wait for the server answer.
// A timeout in the middle of a segmented transfer aborts the transfer.
func (c *Client) request(tx *transport.Tx, index uint16, subIndex uint8, req [8]byte, segment bool) ([8]byte, error) {
	var response [8]byte
	c.setState(StateAwaitingResponse)
	log.Debugf("[SDO CLIENT][TX] x%x:x%x | % x", index, subIndex, req)
	if err := tx.Send(c.cobIdClientToServer, req[:]); err != nil {
		c.setState(StateAborted)
		return response, err
	}
	frame, err := tx.ReceiveMatching(transport.FromIDWithLength(c.cobIdServerToClient, 8), c.timeout)
	if err != nil {
		if !segment {
			c.setState(StateTimedOut)
			return response, fmt.Errorf("[SDO CLIENT] x%x:x%x node x%x : %w", index, subIndex, c.nodeId, err)
		}
		c.sendAbort(tx, index, subIndex, AbortTimeout)
		c.setState(StateAborted)
		return response, fmt.Errorf("[SDO CLIENT] x%x:x%x node x%x : %w : %w", index, subIndex, c.nodeId, candle.ErrSegmentedTransferAborted, err)
	}
	copy(response[:], frame.Data[:8])
	log.Debugf("[SDO CLIENT][RX] x%x:x%x | % x", index, subIndex, response)
	if response[0] == cmdAbort {
		code := AbortCode(binary.LittleEndian.Uint32(response[4:]))
		log.Warnf("[SDO CLIENT][RX] x%x:x%x server abort : %v", index, subIndex, code)
		c.setState(StateAborted)
		return response, fmt.Errorf("[SDO CLIENT] x%x:x%x node x%x : %w", index, subIndex, c.nodeId, code)
	}
	return response, nil
}

func (c *Client) sendAbort(tx *transport.Tx, index uint16, subIndex uint8, code AbortCode) {
	frame := header(cmdAbort, index, subIndex)
	binary.LittleEndian.PutUint32(frame[4:], uint32(code))
	log.Warnf("[SDO CLIENT][TX] x%x:x%x abort : %v", index, subIndex, code)
	_ = tx.Send(c.cobIdClientToServer, frame[:])
}

// Abort the running transfer locally and on the server
func (c *Client) abort(tx *transport.Tx, index uint16, subIndex uint8, code AbortCode) error {
	c.sendAbort(tx, index, subIndex, code)
	c.setState(StateAborted)
	return fmt.Errorf("[SDO CLIENT] x%x:x%x node x%x : %w", index, subIndex, c.nodeId, code)
}

func (c *Client) upload(index uint16, subIndex uint8) ([]byte, error) {
	tx := c.transport.Begin()
	defer tx.End()

	response, err := c.request(tx, index, subIndex, header(cmdUploadInitiate, index, subIndex), false)
	if err != nil {
		return nil, err
	}
	command := response[0]
	if command&0xE0 != cmdUploadInitiate || !sameObject(response, index, subIndex) {
		return nil, c.abort(tx, index, subIndex, AbortCmd)
	}

	// Expedited
	if command&0x02 != 0 {
		size := 4
		if command&0x01 != 0 {
			size -= int((command >> 2) & 0x03)
		}
		data := make([]byte, size)
		copy(data, response[4:4+size])
		c.setState(StateCompleted)
		return data, nil
	}

	// Segmented, size is optional
	sizeIndicated := -1
	if command&0x01 != 0 {
		sizeIndicated = int(binary.LittleEndian.Uint32(response[4:]))
	}
	data := make([]byte, 0, max(sizeIndicated, 0))
	toggle := uint8(0)
	for {
		response, err = c.request(tx, index, subIndex, [8]byte{cmdUploadSegment | toggle}, true)
		if err != nil {
			return nil, err
		}
		command = response[0]
		if command&0xE0 != 0x00 {
			return nil, c.abort(tx, index, subIndex, AbortCmd)
		}
		if command&toggleBit != toggle {
			return nil, c.abort(tx, index, subIndex, AbortToggleBit)
		}
		count := SegmentSize - int((command>>1)&0x07)
		data = append(data, response[1:1+count]...)
		if sizeIndicated >= 0 && len(data) > sizeIndicated {
			return nil, c.abort(tx, index, subIndex, AbortDataLong)
		}
		if command&lastSegmentBit != 0 {
			break
		}
		toggle ^= toggleBit
	}
	if sizeIndicated >= 0 && len(data) != sizeIndicated {
		c.setState(StateAborted)
		return nil, fmt.Errorf("%w : received %v bytes, expected %v", candle.ErrMalformedPayload, len(data), sizeIndicated)
	}
	c.setState(StateCompleted)
	log.Debugf("[SDO CLIENT] x%x:x%x uploaded %v bytes", index, subIndex, len(data))
	return data, nil
}

func (c *Client) downloadExpedited(index uint16, subIndex uint8, data []byte) error {
	if len(data) == 0 || len(data) > 4 {
		return fmt.Errorf("%w : %v bytes for an expedited write", candle.ErrInvalidArgs, len(data))
	}
	tx := c.transport.Begin()
	defer tx.End()

	req := header(cmdDownloadExpedited|uint8(4-len(data))<<2, index, subIndex)
	copy(req[4:], data)
	response, err := c.request(tx, index, subIndex, req, false)
	if err != nil {
		return err
	}
	if response[0] != cmdDownloadResponse || !sameObject(response, index, subIndex) {
		return c.abort(tx, index, subIndex, AbortCmd)
	}
	c.setState(StateCompleted)
	return nil
}

func (c *Client) downloadSegmented(index uint16, subIndex uint8, data []byte) error {
	tx := c.transport.Begin()
	defer tx.End()

	req := header(cmdDownloadSegmented, index, subIndex)
	binary.LittleEndian.PutUint32(req[4:], uint32(len(data)))
	response, err := c.request(tx, index, subIndex, req, false)
	if err != nil {
		return err
	}
	if response[0] != cmdDownloadResponse || !sameObject(response, index, subIndex) {
		return c.abort(tx, index, subIndex, AbortCmd)
	}

	toggle := uint8(0)
	offset := 0
	for {
		count := min(SegmentSize, len(data)-offset)
		last := offset+count == len(data)
		segment := [8]byte{toggle | uint8(SegmentSize-count)<<1}
		if last {
			segment[0] |= lastSegmentBit
		}
		copy(segment[1:], data[offset:offset+count])
		response, err = c.request(tx, index, subIndex, segment, true)
		if err != nil {
			return err
		}
		if response[0]&0xEF != cmdDownloadSegmentRsp {
			return c.abort(tx, index, subIndex, AbortCmd)
		}
		if response[0]&toggleBit != toggle {
			return c.abort(tx, index, subIndex, AbortToggleBit)
		}
		offset += count
		if last {
			break
		}
		toggle ^= toggleBit
	}
	c.setState(StateCompleted)
	log.Debugf("[SDO CLIENT] x%x:x%x downloaded %v bytes", index, subIndex, len(data))
	return nil
}
