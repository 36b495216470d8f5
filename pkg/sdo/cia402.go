package sdo

import (
	log "github.com/sirupsen/logrus"
)

// CiA 402 modes of operation
type ModeOfOperation int8

const (
	ModeImpedance          ModeOfOperation = -3
	ModeService            ModeOfOperation = -2
	ModeIdle               ModeOfOperation = 0
	ModeProfilePosition    ModeOfOperation = 1
	ModeProfileVelocity    ModeOfOperation = 2
	ModeCyclicSyncPosition ModeOfOperation = 8
	ModeCyclicSyncVelocity ModeOfOperation = 9
)

// Drive profile objects
const (
	IndexControlword      uint16 = 0x6040
	IndexModesOfOperation uint16 = 0x6060
	IndexTargetVelocity   uint16 = 0x60FF
	IndexStoreParameters  uint16 = 0x1010
)

// Controlword commands
const (
	ControlwordFaultReset      = 0x80
	ControlwordShutdown        = 0x06
	ControlwordEnableOperation = 0x0F
)

// "save" in ASCII, little endian
const SaveSignature = 0x65766173

type step struct {
	index uint16
	value int64
	width int
}

func (c *Client) run(action string, steps []step) error {
	for _, s := range steps {
		if err := c.WriteShort(s.index, 0, s.value, s.width); err != nil {
			log.Errorf("[SDO CLIENT][x%x] %v : writing x%x = x%x : %v", c.nodeId, action, s.index, s.value, err)
			return err
		}
	}
	return nil
}

// Select mode then go through fault reset, shutdown and enable operation
func (c *Client) Enable(mode ModeOfOperation) error {
	err := c.run("enable", []step{
		{IndexModesOfOperation, int64(mode), 1},
		{IndexControlword, ControlwordFaultReset, 2},
		{IndexControlword, ControlwordShutdown, 2},
		{IndexControlword, ControlwordEnableOperation, 2},
	})
	if err == nil {
		log.Infof("[SDO CLIENT][x%x] drive enabled in mode %v", c.nodeId, mode)
	}
	return err
}

// Stop the motor, shutdown and go back to idle mode
func (c *Client) Disable() error {
	return c.run("disable", []step{
		{IndexTargetVelocity, 0, 4},
		{IndexControlword, ControlwordShutdown, 2},
		{IndexModesOfOperation, int64(ModeIdle), 1},
	})
}

// Store all parameters in non volatile memory
func (c *Client) Save() error {
	return c.WriteShort(IndexStoreParameters, 1, SaveSignature, 4)
}
