package dashapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func stubPorts(t *testing.T, details []*enumerator.PortDetails, err error) {
	t.Helper()
	orig := listPorts
	listPorts = func() ([]*enumerator.PortDetails, error) { return details, err }
	t.Cleanup(func() { listPorts = orig })
}

func TestDetectPorts(t *testing.T) {
	stubPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R"},
		nil,
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "0483", PID: "5740", SerialNumber: "MM1"},
	}, nil)

	ports, err := DetectPorts()
	require.NoError(t, err)
	require.Len(t, ports, 3)

	assert.Equal(t, "/dev/ttyACM0", ports[0].Name)
	assert.True(t, ports[0].Modem)
	assert.Equal(t, "MM1", ports[0].SerialNumber)
	assert.Equal(t, "/dev/ttyS0", ports[1].Name)
	assert.False(t, ports[1].Modem)
	assert.Equal(t, "/dev/ttyUSB0", ports[2].Name)
}

func TestDetectPorts_LowercaseIDs(t *testing.T) {
	stubPorts(t, []*enumerator.PortDetails{
		{Name: "COM4", IsUSB: true, VID: "0483", PID: "5740"},
		{Name: "COM3", IsUSB: false, VID: "0483", PID: "5740"},
	}, nil)

	ports, err := DetectPorts()
	require.NoError(t, err)
	assert.True(t, ports[0].Modem)
	assert.Equal(t, "COM4", ports[0].Name)
	assert.False(t, ports[1].Modem, "non-USB ports never match")
}

func TestDetectPorts_Error(t *testing.T) {
	stubPorts(t, nil, errors.New("no sysfs"))
	_, err := DetectPorts()
	assert.ErrorContains(t, err, "no sysfs")
}
