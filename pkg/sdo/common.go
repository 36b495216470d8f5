package sdo

import (
	"errors"
	"fmt"
	"time"

	candle "github.com/samsamfire/gocandle"
)

const (
	DefaultTimeout = 100 * time.Millisecond // Per frame, also per segment
	SegmentSize    = 7
	ClientBaseId   = 0x600
	ServerBaseId   = 0x580
)

// Command specifiers
const (
	cmdUploadInitiate     uint8 = 0x40
	cmdUploadSegment      uint8 = 0x60
	cmdDownloadInitiate   uint8 = 0x20
	cmdDownloadSegmented  uint8 = 0x21
	cmdDownloadExpedited  uint8 = 0x23
	cmdDownloadResponse   uint8 = 0x60
	cmdDownloadSegmentRsp uint8 = 0x20
	cmdAbort              uint8 = 0x80
	toggleBit             uint8 = 0x10
	lastSegmentBit        uint8 = 0x01
)

// Progress of the last transaction run by a client
type State uint8

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateCompleted
	StateTimedOut
	StateAborted
)

func (state State) String() string {
	switch state {
	case StateIdle:
		return "IDLE"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateCompleted:
		return "COMPLETED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateAborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// CiA 301 abort code, sent by either side to cancel a transfer
type AbortCode uint32

const (
	AbortToggleBit         AbortCode = 0x05030000
	AbortTimeout           AbortCode = 0x05040000
	AbortCmd               AbortCode = 0x05040001
	AbortOutOfMem          AbortCode = 0x05040005
	AbortUnsupportedAccess AbortCode = 0x06010000
	AbortWriteOnly         AbortCode = 0x06010001
	AbortReadOnly          AbortCode = 0x06010002
	AbortNotExist          AbortCode = 0x06020000
	AbortNoMap             AbortCode = 0x06040041
	AbortMapLen            AbortCode = 0x06040042
	AbortParamIncompat     AbortCode = 0x06040043
	AbortDeviceIncompat    AbortCode = 0x06040047
	AbortHardware          AbortCode = 0x06060000
	AbortTypeMismatch      AbortCode = 0x06070010
	AbortDataLong          AbortCode = 0x06070012
	AbortDataShort         AbortCode = 0x06070013
	AbortSubUnknown        AbortCode = 0x06090011
	AbortInvalidValue      AbortCode = 0x06090030
	AbortValueHigh         AbortCode = 0x06090031
	AbortValueLow          AbortCode = 0x06090032
	AbortMaxLessMin        AbortCode = 0x06090036
	AbortNoRessource       AbortCode = 0x060A0023
	AbortGeneral           AbortCode = 0x08000000
	AbortDataTransfer      AbortCode = 0x08000020
	AbortDataLocalControl  AbortCode = 0x08000021
	AbortDataDeviceState   AbortCode = 0x08000022
	AbortDataOD            AbortCode = 0x08000023
	AbortNoData            AbortCode = 0x08000024
)

var abortDescriptions = map[AbortCode]string{
	AbortToggleBit:         "Toggle bit not altered",
	AbortTimeout:           "SDO protocol timed out",
	AbortCmd:               "Command specifier not valid or unknown",
	AbortOutOfMem:          "Out of memory",
	AbortUnsupportedAccess: "Unsupported access to an object",
	AbortWriteOnly:         "Attempt to read a write only object",
	AbortReadOnly:          "Attempt to write a read only object",
	AbortNotExist:          "Object does not exist in the object dictionary",
	AbortNoMap:             "Object cannot be mapped to the PDO",
	AbortMapLen:            "Num and len of object to be mapped exceeds PDO len",
	AbortParamIncompat:     "General parameter incompatibility reasons",
	AbortDeviceIncompat:    "General internal incompatibility in device",
	AbortHardware:          "Access failed due to hardware error",
	AbortTypeMismatch:      "Data type does not match, length does not match",
	AbortDataLong:          "Data type does not match, length too high",
	AbortDataShort:         "Data type does not match, length too short",
	AbortSubUnknown:        "Sub index does not exist",
	AbortInvalidValue:      "Invalid value for parameter (download only)",
	AbortValueHigh:         "Value range of parameter written too high",
	AbortValueLow:          "Value range of parameter written too low",
	AbortMaxLessMin:        "Maximum value is less than minimum value.",
	AbortNoRessource:       "Resource not available: SDO connection",
	AbortGeneral:           "General error",
	AbortDataTransfer:      "Data cannot be transferred or stored to application",
	AbortDataLocalControl:  "Data cannot be transferred because of local control",
	AbortDataDeviceState:   "Data cannot be tran. because of present device state",
	AbortDataOD:            "Object dict. not present or dynamic generation fails",
	AbortNoData:            "No data available",
}

func (abort AbortCode) Error() string {
	return fmt.Sprintf("x%x : %s", uint32(abort), abort.Description())
}

func (abort AbortCode) Description() string {
	description, ok := abortDescriptions[abort]
	if ok {
		return description
	}
	return abortDescriptions[AbortGeneral]
}

// Abort codes also match the library sentinel errors they correspond to
func (abort AbortCode) Is(target error) bool {
	switch target {
	case candle.ErrSegmentedTransferAborted:
		return abort == AbortToggleBit || abort == AbortTimeout
	case candle.ErrUnknownIndex:
		return abort == AbortNotExist || abort == AbortSubUnknown
	case candle.ErrAccessDenied:
		return abort == AbortReadOnly || abort == AbortWriteOnly || abort == AbortUnsupportedAccess
	}
	return false
}

// Extract the abort code from err, if any
func AsAbortCode(err error) (AbortCode, bool) {
	var abort AbortCode
	ok := errors.As(err, &abort)
	return abort, ok
}
