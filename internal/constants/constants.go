// Package constants holds the default tunables and wire-level constants
// shared across the acquisition pipeline.
package constants

import "time"

// USB device identity. This module targets exactly one device.
const (
	VendorID  = 0x04B4 // Cypress Semiconductor
	ProductID = 0x00F1 // FX3 streaming firmware
)

// Ring buffer defaults (C3).
const (
	DefaultRingSlots        = 64
	DefaultSlotCapacity     = 262144 // 256 KiB
	OccupancyWarningPct     = 75
	OccupancyCriticalPct    = 90
	DefaultMaxPacketsPerBatch = 8
	DefaultMaxBatchIntervalMs = 50
)

// Acquirer loop timing (C4).
const (
	StopCheckIntervalMs   = 100
	StatsUpdateIntervalMs = 200
	MaxConsecutiveFailures = 10
	ReadTimeout           = 1000 * time.Millisecond
	NoSlotBackoff         = 100 * time.Millisecond
	ReadFailureBackoff    = 10 * time.Millisecond
)

// Processor loop timing (C5).
const (
	ProcessorWaitTimeout = 100 * time.Millisecond
)

// UsbEndpoint timing (C1).
const (
	OpenMaxAttempts        = 3
	OpenRetryBackoff       = 500 * time.Millisecond
	CommandTimeout         = 500 * time.Millisecond
	ReadTransferTimeout    = 1000 * time.Millisecond
	PreCommandAbortDelay   = 12 * time.Millisecond
	StopCommandTimeout     = 200 * time.Millisecond
	StopEndpointTimeout    = 200 * time.Millisecond
	StopCleanupCeiling     = 500 * time.Millisecond
	CommandFrameSize       = 512
)

// Command frame byte offsets (C2).
const (
	OffsetFrameWidth       = 80
	OffsetFrameHeight      = 84
	OffsetLaneSeqA         = 88
	OffsetLaneSeqB         = 89
	OffsetCaptureTypeA     = 92
	OffsetCaptureTypeB     = 93
	OffsetChannelMode      = 0x48
	OffsetInvertPN         = 0x4C
)

// Image format codes carried in AcquisitionParams.Format.
const (
	FormatRAW8  = 0x38
	FormatRAW10 = 0x39
	FormatRAW12 = 0x3A
)

// Device geometry limits.
const (
	MaxWidth  = 4096
	MaxHeight = 4096
)

// File save defaults (C10).
const (
	DefaultMaxFileSize     = 1 << 30 // 1 GiB
	DefaultAutoSplitTime   = 300 * time.Second
	SaveRateEWMAAlpha      = 0.3
	SaveStatsIntervalMs    = 200
	WriteErrorBackoff      = 500 * time.Millisecond
	PausePollInterval      = 50 * time.Millisecond
)

// AsyncWriter queue sizing (C8).
const (
	AsyncWriterMaxQueue     = 100
	AsyncWriterResumeFrac   = 0.8
	StdWriterStagingBytes   = 4 << 20 // 4 MiB
)

// Offline read-back (C10).
const (
	ReadbackChunkBytes   = 1 << 20 // 1 MiB disk reads
	ReadbackPacketBytes  = 64 << 10
	ReadbackQueueCap     = 1000
	ReadbackFullBackoff  = 10 * time.Millisecond
	ReadbackProgressStep = 0.05 // publish every 5%
)

// Device arrival/removal debounce (C11).
const (
	DeviceEventDebounce = 300 * time.Millisecond
	StopJoinTimeout     = 300 * time.Millisecond
)
