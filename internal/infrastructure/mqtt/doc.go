// Package mqtt provides the message-bus transport for Kennel Core.
//
// It wraps eclipse/paho.mqtt.golang with connection management, Last Will
// and Testament, automatic re-subscription on reconnect, panic-safe message
// handlers, and builders for the kennel-addressed topic scheme:
//
//	<base>/kennel<N>/sensors/<kind>   inbound telemetry
//	<base>/kennel<N>/hvac/<actuator>  outbound HVAC commands
//	<base>/kennel<N>/alert/<type>     outbound alerts
//	<base>/kennel<N>/leds/<colour>    outbound indicator commands
//	<base>/kennel<N>/disinfect        outbound disinfection requests
//	<base>/kennel<N>/status           inbound disinfection-complete events
//
// The reservation scheduler and environmental control loop consume this
// package through narrow Publisher/Subscriber interfaces so tests can
// substitute in-memory fakes.
package mqtt
