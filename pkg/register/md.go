package register

import "sync"

// Register names of the motor drive used by higher level helpers
const (
	CanID                 = "canID"
	CanBaudrate           = "canBaudrate"
	CanWatchdog           = "canWatchdog"
	CanTermination        = "canTermination"
	MotorName             = "motorName"
	MotorIMax             = "motorIMax"
	MotorPosPidKp         = "motorPosPidKp"
	MotorPosPidKi         = "motorPosPidKi"
	MotorPosPidKd         = "motorPosPidKd"
	MotorPosPidWindup     = "motorPosPidWindup"
	MotorVelPidKp         = "motorVelPidKp"
	MotorVelPidKi         = "motorVelPidKi"
	MotorVelPidKd         = "motorVelPidKd"
	MotorVelPidWindup     = "motorVelPidWindup"
	MotorImpPidKp         = "motorImpPidKp"
	MotorImpPidKd         = "motorImpPidKd"
	MainEncoderVelocity   = "mainEncoderVelocity"
	MainEncoderPosition   = "mainEncoderPosition"
	MotorTorque           = "motorTorque"
	RunSave               = "runSave"
	RunReset              = "runReset"
	RunClearWarnings      = "runClearWarnings"
	RunClearErrors        = "runClearErrors"
	RunBlink              = "runBlink"
	RunZero               = "runZero"
	MaxTorque             = "maxTorque"
	MaxVelocity           = "maxVelocity"
	ProfileVelocity       = "profileVelocity"
	ProfileAcceleration   = "profileAcceleration"
	ProfileDeceleration   = "profileDeceleration"
	MotionModeCommand     = "motionModeCommand"
	MotionModeStatus      = "motionModeStatus"
	State                 = "state"
	TargetPosition        = "targetPosition"
	TargetVelocity        = "targetVelocity"
	TargetTorque          = "targetTorque"
	BuildDate             = "buildDate"
	CommitHash            = "commitHash"
	FirmwareVersion       = "firmwareVersion"
	LegacyHardwareVersion = "legacyHardwareVersion"
	QuickStatus           = "quickStatus"
	MosfetTemperature     = "mosfetTemperature"
	MotorTemperature      = "motorTemperature"
	MapVoltageValues      = "mapVoltageValues"
	MapTorqueValues0      = "mapTorqueValues0"
	MapTorqueValues1      = "mapTorqueValues1"
	MapVelocityValues     = "mapVelocityValues"
	MapSelectRow          = "mapSelectRow"
	MapRowData            = "mapRowData"
	IqControlMode         = "iqControlMode"
	IdControlMode         = "idControlMode"
)

// Map dimensions
const (
	MapVoltageCount       = 5
	MapTorqueCount        = 17
	MapVelocityCount      = 15
	mapTorqueValues0Count = 15
	mapTorqueValues1Count = MapTorqueCount - mapTorqueValues0Count
	motorNameWidth        = 24
	commitHashWidth       = 8
)

func reg(name string, id uint16, t Type, access Access) Descriptor {
	return Descriptor{Name: name, ID: id, Type: t, Access: access}
}

var (
	u8  = Scalar(U8)
	u16 = Scalar(U16)
	u32 = Scalar(U32)
	f32 = Scalar(F32)
)

var mdRegisters = []Descriptor{
	reg(CanID, 0x001, u32, ReadWrite),
	reg(CanBaudrate, 0x002, u32, ReadWrite),
	reg(CanWatchdog, 0x003, u16, ReadWrite),
	reg(CanTermination, 0x004, u8, ReadWrite),

	reg(MotorName, 0x010, String(motorNameWidth), ReadWrite),
	reg("motorPolePairs", 0x011, u32, ReadWrite),
	reg("motorKt", 0x012, f32, ReadWrite),
	reg("motorKtPhaseA", 0x013, f32, ReadWrite),
	reg("motorKtPhaseB", 0x014, f32, ReadWrite),
	reg("motorKtPhaseC", 0x015, f32, ReadWrite),
	reg(MotorIMax, 0x016, f32, ReadWrite),
	reg("motorGearRatio", 0x017, f32, ReadWrite),
	reg("motorTorqueBandwidth", 0x018, u16, ReadWrite),
	reg("motorFriction", 0x019, f32, ReadWrite),
	reg("motorStiction", 0x01A, f32, ReadWrite),
	reg("motorResistance", 0x01B, f32, ReadOnly),
	reg("motorInductance", 0x01C, f32, ReadOnly),
	reg("motorKV", 0x01D, u16, ReadWrite),
	reg("motorCalibrationMode", 0x01E, u8, ReadWrite),
	reg("motorThermistorType", 0x01F, u8, ReadWrite),

	reg("outputEncoder", 0x020, u8, ReadWrite),
	reg("outputEncoderDir", 0x021, f32, ReadWrite),
	reg("outputEncoderDefaultBaud", 0x022, u32, ReadWrite),
	reg("outputEncoderVelocity", 0x023, f32, ReadOnly),
	reg("outputEncoderPosition", 0x024, f32, ReadOnly),
	reg("outputEncoderMode", 0x025, u8, ReadWrite),
	reg("outputEncoderCalibrationMode", 0x026, u8, ReadWrite),

	reg(MotorPosPidKp, 0x030, f32, ReadWrite),
	reg(MotorPosPidKi, 0x031, f32, ReadWrite),
	reg(MotorPosPidKd, 0x032, f32, ReadWrite),
	reg(MotorPosPidWindup, 0x034, f32, ReadWrite),

	reg(MotorVelPidKp, 0x040, f32, ReadWrite),
	reg(MotorVelPidKi, 0x041, f32, ReadWrite),
	reg(MotorVelPidKd, 0x042, f32, ReadWrite),
	reg(MotorVelPidWindup, 0x044, f32, ReadWrite),

	reg(MotorImpPidKp, 0x050, f32, ReadWrite),
	reg(MotorImpPidKd, 0x051, f32, ReadWrite),

	reg(MainEncoderVelocity, 0x062, f32, ReadOnly),
	reg(MainEncoderPosition, 0x063, f32, ReadOnly),
	reg(MotorTorque, 0x064, f32, ReadOnly),

	reg("homingMode", 0x070, u8, ReadWrite),
	reg("homingMaxTravel", 0x071, f32, ReadWrite),
	reg("homingVelocity", 0x072, f32, ReadWrite),
	reg("homingTorque", 0x073, f32, ReadWrite),

	reg(RunSave, 0x080, u8, WriteOnly),
	reg("runTestMainEncoder", 0x081, u8, WriteOnly),
	reg("runTestOutputEncoder", 0x082, u8, WriteOnly),
	reg("runCalibrate", 0x083, u8, WriteOnly),
	reg("runCalibrateOutputEncoder", 0x084, u8, WriteOnly),
	reg("runCalibratePiGains", 0x085, u8, WriteOnly),
	reg("runHoming", 0x086, u8, WriteOnly),
	reg("runRestoreFactoryConfig", 0x087, u8, WriteOnly),
	reg(RunReset, 0x088, u8, WriteOnly),
	reg(RunClearWarnings, 0x089, u8, WriteOnly),
	reg(RunClearErrors, 0x08A, u8, WriteOnly),
	reg(RunBlink, 0x08B, u8, WriteOnly),
	reg(RunZero, 0x08C, u8, WriteOnly),
	reg("runCanReinit", 0x08D, u8, WriteOnly),

	reg("calOutputEncoderStdDev", 0x100, f32, ReadOnly),
	reg("calOutputEncoderMinE", 0x101, f32, ReadOnly),
	reg("calOutputEncoderMaxE", 0x102, f32, ReadOnly),
	reg("calMainEncoderStdDev", 0x103, f32, ReadOnly),
	reg("calMainEncoderMinE", 0x104, f32, ReadOnly),
	reg("calMainEncoderMaxE", 0x105, f32, ReadOnly),

	reg("positionLimitMax", 0x110, f32, ReadWrite),
	reg("positionLimitMin", 0x111, f32, ReadWrite),
	reg(MaxTorque, 0x112, f32, ReadWrite),
	reg(MaxVelocity, 0x113, f32, ReadWrite),
	reg("maxAcceleration", 0x114, f32, ReadWrite),
	reg("maxDeceleration", 0x115, f32, ReadWrite),

	reg(ProfileVelocity, 0x120, f32, ReadWrite),
	reg(ProfileAcceleration, 0x121, f32, ReadWrite),
	reg(ProfileDeceleration, 0x122, f32, ReadWrite),
	reg("quickStopDeceleration", 0x123, f32, ReadWrite),
	reg("positionWindow", 0x124, f32, ReadWrite),
	reg("velocityWindow", 0x125, f32, ReadWrite),

	reg(MotionModeCommand, 0x140, u8, WriteOnly),
	reg(MotionModeStatus, 0x141, u8, ReadOnly),
	reg(State, 0x142, u16, ReadWrite),

	reg(TargetPosition, 0x150, f32, ReadWrite),
	reg(TargetVelocity, 0x151, f32, ReadWrite),
	reg(TargetTorque, 0x152, f32, ReadWrite),

	reg("userGpioConfiguration", 0x160, u8, ReadWrite),
	reg("userGpioState", 0x161, u16, ReadOnly),

	// Field oriented control maps
	reg(MapVoltageValues, 0x170, Array(F32, MapVoltageCount), ReadWrite),
	reg(MapTorqueValues0, 0x171, Array(F32, mapTorqueValues0Count), ReadWrite),
	reg(MapTorqueValues1, 0x172, Array(F32, mapTorqueValues1Count), ReadWrite),
	reg(MapVelocityValues, 0x173, Array(F32, MapVelocityCount), ReadWrite),
	reg(MapSelectRow, 0x174, Array(U8, 3), ReadWrite),
	reg(MapRowData, 0x175, Array(F32, MapVelocityCount), ReadWrite),
	reg(IqControlMode, 0x176, u8, ReadWrite),
	reg(IdControlMode, 0x177, u8, ReadWrite),

	reg("reverseDirection", 0x600, u8, ReadWrite),
	reg("shuntResistance", 0x700, f32, ReadOnly),

	reg(BuildDate, 0x800, u32, ReadOnly),
	reg(CommitHash, 0x801, String(commitHashWidth), ReadOnly),
	reg(FirmwareVersion, 0x802, u32, ReadOnly),
	reg(LegacyHardwareVersion, 0x803, u8, ReadOnly),
	reg("bridgeType", 0x804, u8, ReadOnly),
	reg(QuickStatus, 0x805, u16, ReadOnly),
	reg(MosfetTemperature, 0x806, f32, ReadOnly),
	reg(MotorTemperature, 0x807, f32, ReadOnly),
	reg("motorShutdownTemp", 0x808, f32, ReadOnly),
	reg("mainEncoderErrors", 0x809, u32, ReadOnly),
	reg("outputEncoderErrors", 0x80A, u32, ReadOnly),
	reg("calibrationErrors", 0x80B, u32, ReadOnly),
	reg("bridgeErrors", 0x80C, u32, ReadOnly),
	reg("hardwareErrors", 0x80D, u32, ReadOnly),
	reg("communicationErrors", 0x80E, u32, ReadOnly),
	reg("homingErrors", 0x80F, u32, ReadOnly),
	reg("motionErrors", 0x810, u32, ReadOnly),
	reg("dcBusVoltage", 0x811, f32, ReadOnly),
	reg("bootloaderFixed", 0x812, u8, ReadOnly),
}

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Register dictionary of the motor drive firmware
func Default() *Dictionary {
	defaultOnce.Do(func() {
		dict, err := NewDictionary(mdRegisters...)
		if err != nil {
			panic(err)
		}
		defaultDict = dict
	})
	return defaultDict
}
