package scpi

import (
	"fmt"
	"strings"
)

// Instrument-wide measurement queries.
const (
	MeasureVoltage = "MEASURE:VOLTAGE?"
	MeasureCurrent = "MEASURE:CURRENT?"
	MeasurePower   = "MEASURE:POWER?"
)

// SetVoltage programs the voltage setpoint of a channel. The value is sent as given.
func SetVoltage(channel int, voltage string) string {
	return fmt.Sprintf("SOURCE:CHANNEL%d:VOLTAGE %s", channel, voltage)
}

// SetCurrent programs the current limit of a channel. The value is sent as given.
func SetCurrent(channel int, current string) string {
	return fmt.Sprintf("SOURCE:CHANNEL%d:CURRENT %s", channel, current)
}

// OutputState switches the output of a channel on or off.
func OutputState(channel int, on bool) string {
	state := "OFF"
	if on {
		state = "ON"
	}
	return fmt.Sprintf("OUTPUT:CHANNEL%d:STATE %s", channel, state)
}

func MeasureChannelVoltage(channel int) string {
	return fmt.Sprintf("MEASURE:CHANNEL%d:VOLTAGE?", channel)
}

func MeasureChannelCurrent(channel int) string {
	return fmt.Sprintf("MEASURE:CHANNEL%d:CURRENT?", channel)
}

// IsQuery reports whether the command expects a measured value back.
func IsQuery(command string) bool {
	return strings.HasSuffix(strings.TrimSpace(command), "?")
}
