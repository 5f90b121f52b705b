package dashapi

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB identifiers of the Marvelmind modem's virtual COM port.
const (
	ModemVID = "0483"
	ModemPID = "5740"
)

// PortInfo describes one serial port found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	USB          bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Modem        bool   `json:"modem"`
}

// listPorts is replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// DetectPorts lists serial ports, modems first. libdashapi picks the port
// itself; this is for diagnostics and the -ports flag.
func DetectPorts() ([]PortInfo, error) {
	details, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		p := PortInfo{
			Name:         d.Name,
			USB:          d.IsUSB,
			VID:          strings.ToUpper(d.VID),
			PID:          strings.ToUpper(d.PID),
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		p.Modem = p.USB && p.VID == ModemVID && p.PID == ModemPID
		ports = append(ports, p)
	}

	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].Modem != ports[j].Modem {
			return ports[i].Modem
		}
		return ports[i].Name < ports[j].Name
	})
	return ports, nil
}
