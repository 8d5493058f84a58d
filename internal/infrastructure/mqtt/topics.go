package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Sensor kinds published by kennel device connectors.
const (
	SensorMotion    = "motion"
	SensorTempHumid = "temp_humid"
)

// HVAC actuator names addressed per kennel.
const (
	ActuatorHeating      = "heating"
	ActuatorCooling      = "cooling"
	ActuatorHumidifier   = "humidifier"
	ActuatorDehumidifier = "dehumidifier"
)

// Alert types published by the environmental control loop.
const (
	AlertMotion      = "motion"
	AlertTemperature = "temperature"
	AlertHumidity    = "humidity"
)

// LED indicator colours. Green marks a free kennel, yellow a booked one,
// red an occupied one.
const (
	LEDGreen  = "greenled"
	LEDYellow = "yellowled"
	LEDRed    = "redled"
)

// Topics builds IoTail MQTT topic strings rooted at a configurable base.
//
// The fleet topic scheme is flat and kennel-addressed:
//
//	<base>/kennel<N>/sensors/<kind>       sensor telemetry (SenML envelope)
//	<base>/kennel<N>/hvac/<actuator>      HVAC commands
//	<base>/kennel<N>/alert/<type>         user alerts
//	<base>/kennel<N>/leds/<colour>        indicator commands
//	<base>/kennel<N>/disinfect            disinfection requests
//	<base>/kennel<N>/status               disinfection-complete notifications
//
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct {
	Base string
}

// KennelSensor returns the telemetry topic for one sensor on one kennel.
//
// Example: iotail/kennel3/sensors/temp_humid
func (t Topics) KennelSensor(kennelID int, kind string) string {
	return fmt.Sprintf("%s/kennel%d/sensors/%s", t.Base, kennelID, kind)
}

// AllKennelSensors returns a pattern matching every sensor on every kennel.
//
// Pattern: iotail/+/sensors/+
func (t Topics) AllKennelSensors() string {
	return fmt.Sprintf("%s/+/sensors/+", t.Base)
}

// KennelHVAC returns the command topic for one HVAC actuator on one kennel.
//
// Example: iotail/kennel3/hvac/cooling
func (t Topics) KennelHVAC(kennelID int, actuator string) string {
	return fmt.Sprintf("%s/kennel%d/hvac/%s", t.Base, kennelID, actuator)
}

// KennelAlert returns the alert topic for one alert type on one kennel.
//
// Example: iotail/kennel3/alert/temperature
func (t Topics) KennelAlert(kennelID int, alertType string) string {
	return fmt.Sprintf("%s/kennel%d/alert/%s", t.Base, kennelID, alertType)
}

// KennelLED returns the indicator command topic for one LED on one kennel.
//
// Example: iotail/kennel3/leds/greenled
func (t Topics) KennelLED(kennelID int, colour string) string {
	return fmt.Sprintf("%s/kennel%d/leds/%s", t.Base, kennelID, colour)
}

// KennelDisinfect returns the disinfection request topic for one kennel.
//
// Example: iotail/kennel3/disinfect
func (t Topics) KennelDisinfect(kennelID int) string {
	return fmt.Sprintf("%s/kennel%d/disinfect", t.Base, kennelID)
}

// KennelStatus returns the status topic a cleaning rig publishes
// disinfection-complete notifications on.
//
// Example: iotail/kennel3/status
func (t Topics) KennelStatus(kennelID int) string {
	return fmt.Sprintf("%s/kennel%d/status", t.Base, kennelID)
}

// AllKennelStatuses returns a pattern matching every kennel status topic.
//
// Pattern: iotail/+/status
func (t Topics) AllKennelStatuses() string {
	return fmt.Sprintf("%s/+/status", t.Base)
}

// ServiceStatus returns the online/offline status topic for a core service.
// Four levels deep so it never matches the kennel status wildcard.
//
// Example: iotail/system/kennel-core/status
func (t Topics) ServiceStatus(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", t.Base, clientID)
}

// ParseKennelID extracts the kennel number from a kennel-addressed topic.
//
// The kennel segment is always the second topic level and has the shape
// "kennel<N>" (e.g., "iotail/kennel12/sensors/motion" yields 12).
func ParseKennelID(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	segment := parts[1]
	if !strings.HasPrefix(segment, "kennel") {
		return 0, fmt.Errorf("%w: %q has no kennel segment", ErrMalformedTopic, topic)
	}
	id, err := strconv.Atoi(strings.TrimPrefix(segment, "kennel"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad kennel number in %q", ErrMalformedTopic, topic)
	}
	return id, nil
}
