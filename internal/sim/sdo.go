package sim

import (
	"encoding/binary"
	"sync"

	can "github.com/samsamfire/gocandle/pkg/can"
	"github.com/samsamfire/gocandle/pkg/od"
	log "github.com/sirupsen/logrus"
)

// SDO identifiers and command specifiers seen from the server side
const (
	sdoRequestBaseId  = 0x600
	sdoResponseBaseId = 0x580
	sdoSegmentSize    = 7

	sdoUploadInitiate   uint8 = 0x40
	sdoUploadSegment    uint8 = 0x60
	sdoDownloadInitiate uint8 = 0x20
	sdoDownloadResponse uint8 = 0x60
	sdoSegmentResponse  uint8 = 0x20
	sdoAbort            uint8 = 0x80
	sdoToggle           uint8 = 0x10
	sdoLastSegment      uint8 = 0x01
)

// Abort codes sent by the server
const (
	abortToggleBit  uint32 = 0x05030000
	abortCmd        uint32 = 0x05040001
	abortWriteOnly  uint32 = 0x06010001
	abortReadOnly   uint32 = 0x06010002
	abortNotExist   uint32 = 0x06020000
	abortDataLong   uint32 = 0x06070012
	abortDataShort  uint32 = 0x06070013
	abortSubUnknown uint32 = 0x06090011
)

type sdoTransfer uint8

const (
	transferIdle sdoTransfer = iota
	transferUploading
	transferDownloading
)

type sdoObject struct {
	data     []byte
	access   uint8
	fixedLen int
}

// In-memory SDO server, answers expedited and segmented transfers.
// It can also misbehave on purpose to exercise client error paths.
type SdoServer struct {
	mu      sync.Mutex
	bus     can.Bus
	nodeId  uint8
	objects map[uint32]*sdoObject

	transfer sdoTransfer
	index    uint16
	subIndex uint8
	buffer   []byte
	offset   int
	toggle   uint8
	segments int

	flipToggleAt int
	stallAt      int
	silent       bool
	noSize       bool
}

// Create a server for nodeId answering on bus.
// Objects of dict are preloaded with their default values.
// The server is not subscribed to bus, frames are fed with [SdoServer.Handle].
func NewSdoServer(bus can.Bus, nodeId uint8, dict *od.ObjectDictionary) *SdoServer {
	s := &SdoServer{
		bus:          bus,
		nodeId:       nodeId,
		objects:      make(map[uint32]*sdoObject),
		flipToggleAt: -1,
		stallAt:      -1,
	}
	if dict != nil {
		for _, entry := range dict.Entries() {
			s.objects[objectKey(entry.Index, entry.SubIndex)] = &sdoObject{
				data:     append([]byte(nil), entry.Default...),
				access:   entry.Attribute,
				fixedLen: od.DataTypeSize(entry.DataType),
			}
		}
	}
	return s
}

func objectKey(index uint16, subIndex uint8) uint32 {
	return uint32(index)<<8 | uint32(subIndex)
}

// Set the value of an object, creating a read/write object if needed
func (s *SdoServer) Set(index uint16, subIndex uint8, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectKey(index, subIndex)]
	if !ok {
		obj = &sdoObject{access: od.AttributeSdoRw}
		s.objects[objectKey(index, subIndex)] = obj
	}
	obj.data = append([]byte(nil), data...)
}

// Make an existing object read only
func (s *SdoServer) SetReadOnly(index uint16, subIndex uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[objectKey(index, subIndex)]; ok {
		obj.access &^= od.AttributeSdoW
	}
}

func (s *SdoServer) Get(index uint16, subIndex uint8) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectKey(index, subIndex)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Answer segment number n (counting from 0) of the next transfers
// with the wrong toggle bit, a negative value disables the fault
func (s *SdoServer) FlipToggleAt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flipToggleAt = n
}

// Stop answering from segment number n, a negative value disables the fault
func (s *SdoServer) StallAt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stallAt = n
}

// Ignore every request
func (s *SdoServer) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// Answer expedited uploads with 4 zero padded bytes and no size indication
func (s *SdoServer) OmitSize(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noSize = omit
}

func (s *SdoServer) Handle(frame can.Frame) {
	if frame.ID != sdoRequestBaseId+uint32(s.nodeId) || frame.DLC != 8 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silent {
		return
	}
	var req [8]byte
	copy(req[:], frame.Data[:8])
	command := req[0]

	switch {
	case command == sdoAbort:
		log.Debugf("[SIM][SDO][x%x] abort received x%x", s.nodeId, binary.LittleEndian.Uint32(req[4:]))
		s.transfer = transferIdle
	case command&0xE0 == sdoUploadInitiate:
		s.uploadInitiate(req)
	case command&0xE0 == sdoUploadSegment && s.transfer == transferUploading:
		s.uploadSegment(req)
	case command&0xE0 == sdoDownloadInitiate:
		s.downloadInitiate(req)
	case command&0xE0 == 0x00 && s.transfer == transferDownloading:
		s.downloadSegment(req)
	default:
		s.sendAbort(s.index, s.subIndex, abortCmd)
	}
}

func sdoHeader(command uint8, index uint16, subIndex uint8) [8]byte {
	return [8]byte{command, byte(index), byte(index >> 8), subIndex}
}

func (s *SdoServer) send(response [8]byte) {
	frame, _ := can.NewFrameFromBytes(sdoResponseBaseId+uint32(s.nodeId), response[:])
	log.Debugf("[SIM][SDO][TX] %v", frame)
	if err := s.bus.Send(frame); err != nil {
		log.Warnf("[SIM][SDO][x%x] %v", s.nodeId, err)
	}
}

func (s *SdoServer) sendAbort(index uint16, subIndex uint8, code uint32) {
	s.transfer = transferIdle
	response := sdoHeader(sdoAbort, index, subIndex)
	binary.LittleEndian.PutUint32(response[4:], code)
	s.send(response)
}

func (s *SdoServer) lookup(index uint16, subIndex uint8) (*sdoObject, uint32) {
	obj, ok := s.objects[objectKey(index, subIndex)]
	if ok {
		return obj, 0
	}
	for key := range s.objects {
		if uint16(key>>8) == index {
			return nil, abortSubUnknown
		}
	}
	return nil, abortNotExist
}

// Consume the next segment slot, false when the server must stay silent
func (s *SdoServer) nextSegment() (flip bool, answer bool) {
	n := s.segments
	s.segments++
	if s.stallAt >= 0 && n >= s.stallAt {
		return false, false
	}
	return s.flipToggleAt == n, true
}

func (s *SdoServer) uploadInitiate(req [8]byte) {
	index := binary.LittleEndian.Uint16(req[1:3])
	subIndex := req[3]
	obj, abort := s.lookup(index, subIndex)
	if obj == nil {
		s.sendAbort(index, subIndex, abort)
		return
	}
	if obj.access&od.AttributeSdoR == 0 {
		s.sendAbort(index, subIndex, abortWriteOnly)
		return
	}
	s.index, s.subIndex = index, subIndex
	size := len(obj.data)
	if size > 0 && size <= 4 {
		command := 0x43 | uint8(4-size)<<2
		if s.noSize {
			command = 0x42
		}
		response := sdoHeader(command, index, subIndex)
		copy(response[4:], obj.data)
		s.transfer = transferIdle
		s.send(response)
		return
	}
	response := sdoHeader(0x41, index, subIndex)
	binary.LittleEndian.PutUint32(response[4:], uint32(size))
	s.buffer = append(s.buffer[:0], obj.data...)
	s.offset = 0
	s.toggle = 0
	s.segments = 0
	s.transfer = transferUploading
	s.send(response)
}

func (s *SdoServer) uploadSegment(req [8]byte) {
	if req[0]&sdoToggle != s.toggle {
		s.sendAbort(s.index, s.subIndex, abortToggleBit)
		return
	}
	flip, answer := s.nextSegment()
	if !answer {
		return
	}
	count := min(sdoSegmentSize, len(s.buffer)-s.offset)
	toggle := s.toggle
	if flip {
		toggle ^= sdoToggle
	}
	response := [8]byte{toggle | uint8(sdoSegmentSize-count)<<1}
	copy(response[1:], s.buffer[s.offset:s.offset+count])
	s.offset += count
	if s.offset == len(s.buffer) {
		response[0] |= sdoLastSegment
		s.transfer = transferIdle
	}
	s.toggle ^= sdoToggle
	s.send(response)
}

func (s *SdoServer) downloadInitiate(req [8]byte) {
	index := binary.LittleEndian.Uint16(req[1:3])
	subIndex := req[3]
	obj, abort := s.lookup(index, subIndex)
	if obj == nil {
		s.sendAbort(index, subIndex, abort)
		return
	}
	if obj.access&od.AttributeSdoW == 0 {
		s.sendAbort(index, subIndex, abortReadOnly)
		return
	}
	s.index, s.subIndex = index, subIndex
	command := req[0]

	// Expedited
	if command&0x02 != 0 {
		size := 4
		if command&0x01 != 0 {
			size -= int((command >> 2) & 0x03)
		}
		if obj.fixedLen > 0 && size != obj.fixedLen {
			code := abortDataShort
			if size > obj.fixedLen {
				code = abortDataLong
			}
			s.sendAbort(index, subIndex, code)
			return
		}
		obj.data = append([]byte(nil), req[4:4+size]...)
		s.transfer = transferIdle
		s.send(sdoHeader(sdoDownloadResponse, index, subIndex))
		return
	}

	s.buffer = s.buffer[:0]
	s.toggle = 0
	s.segments = 0
	s.transfer = transferDownloading
	s.send(sdoHeader(sdoDownloadResponse, index, subIndex))
}

func (s *SdoServer) downloadSegment(req [8]byte) {
	if req[0]&sdoToggle != s.toggle {
		s.sendAbort(s.index, s.subIndex, abortToggleBit)
		return
	}
	flip, answer := s.nextSegment()
	if !answer {
		return
	}
	count := sdoSegmentSize - int((req[0]>>1)&0x07)
	s.buffer = append(s.buffer, req[1:1+count]...)
	toggle := s.toggle
	if flip {
		toggle ^= sdoToggle
	}
	s.toggle ^= sdoToggle
	if req[0]&sdoLastSegment != 0 {
		obj := s.objects[objectKey(s.index, s.subIndex)]
		obj.data = append([]byte(nil), s.buffer...)
		s.transfer = transferIdle
		log.Debugf("[SIM][SDO][x%x] x%x:x%x written %v bytes", s.nodeId, s.index, s.subIndex, len(s.buffer))
	}
	s.send([8]byte{sdoSegmentResponse | toggle})
}
