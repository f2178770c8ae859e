package types

// HAL configuration, part of the daemon config and published on "config/hal".

type HALConfig struct {
	Sensor  Device `json:"sensor"`
	Display Device `json:"display"`
}

// Device selects a registered builder by Type. Params is decoded by the
// builder into its own params struct.
type Device struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Params any    `json:"params,omitempty"`
}
