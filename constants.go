package fx3stream

import "github.com/fx3dev/fx3stream/internal/constants"

// Re-exported constants for callers that want this module's defaults
// without importing internal/constants directly.
const (
	VendorID  = constants.VendorID
	ProductID = constants.ProductID

	DefaultRingSlots    = constants.DefaultRingSlots
	DefaultSlotCapacity = constants.DefaultSlotCapacity

	FormatRAW8  = constants.FormatRAW8
	FormatRAW10 = constants.FormatRAW10
	FormatRAW12 = constants.FormatRAW12

	MaxWidth  = constants.MaxWidth
	MaxHeight = constants.MaxHeight

	DefaultMaxFileSize   = constants.DefaultMaxFileSize
	DefaultAutoSplitTime = constants.DefaultAutoSplitTime
)
