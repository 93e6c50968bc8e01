package fx3stream

import "github.com/fx3dev/fx3stream/internal/interfaces"

// DataPacket is one committed read result handed to every DataSink.
type DataPacket = interfaces.DataPacket

// DataSink is a pluggable consumer of acquired data; FileManager is
// the concrete sink this module provides.
type DataSink = interfaces.DataSink

// UsbEndpoint is the capability the Coordinator drives; internal/usb
// provides the production implementation.
type UsbEndpoint = interfaces.UsbEndpoint
