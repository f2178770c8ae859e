package config

// defaultConfig is used when no config file exists. Keys missing from a
// config file keep these values.
const defaultConfig = `{
  // adaptive brightness starts disabled until enabled over the API
  "enabled": false,
  "als": {
    "poll_interval_ms": 100,
    "transition_ms": 500,
    "sensitivity": 50,
  },
  "curve_path": "/var/lib/alsd/brightness_map.json",
  "hal": {
    "sensor":  {"id": "als0", "type": "sim"},
    "display": {"id": "panel0", "type": "sim"},
  },
  "api": {
    "listen": "127.0.0.1:8088",
  },
  "monitor": {
    "interval_s": 1,
    "heartbeat_s": 60,
  },
}`
