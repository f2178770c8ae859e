package types

import "alsd/bus"

// Well-known topics shared between services.
var (
	// Display adapters publish BrightnessChanged here (retained: the last
	// observed level is the baseline for a newly enabled controller).
	TopicBrightnessChanged = bus.T("display", "brightness", "changed")

	TopicALSState = bus.T("als", "state") // ALSStatus, retained
	TopicALSLive  = bus.T("als", "live")  // LiveSample, retained

	TopicConfigALS   = bus.T("config", "als")   // config.Settings, retained
	TopicConfigCurve = bus.T("config", "curve") // Curve, retained
	TopicConfigHAL   = bus.T("config", "hal")   // HALConfig, retained

	TopicConfigMonitor = bus.T("config", "monitor") // config.MonitorConfig, retained
)

// DeviceStatusTopic is where a HAL device publishes its DeviceStatus.
func DeviceStatusTopic(kind Kind, id string) bus.Topic {
	return bus.T("hal", string(kind), id, "status")
}
