package hal

// Device packages register their builders in init().
import (
	_ "alsd/services/hal/devices/backlight"
	_ "alsd/services/hal/devices/bh1750"
	_ "alsd/services/hal/devices/command"
	_ "alsd/services/hal/devices/iio"
	_ "alsd/services/hal/devices/mqttals"
	_ "alsd/services/hal/devices/serialals"
	_ "alsd/services/hal/devices/sim"
)
