package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01

	SYN_REPORT = 0

	KEY_MUTE         = 113
	KEY_VOLUMEDOWN   = 114
	KEY_VOLUMEUP     = 115
	KEY_NEXTSONG     = 163
	KEY_PLAYPAUSE    = 164
	KEY_PREVIOUSSONG = 165
	KEY_STOPCD       = 166
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

const (
	defaultReadTimeoutMS    = 500 // Timeout for CamillaDSP websocket responses (ms)
	defaultPollHz           = 20  // CamillaDSP volume polling rate (Hz)
	defaultCommandTimeoutMS = 2000
	defaultStateWSPort      = 3001
	defaultSocketPath       = "/tmp/headsetbrainz.sock"
	defaultKeyboardName     = "headsetbrainz virtual keyboard"

	// levelEpsilon is the smallest level change the pollers report.
	levelEpsilon = 1e-4
)

// mediaKeys maps action key names to key codes.
var mediaKeys = map[string]uint16{
	"playpause":  KEY_PLAYPAUSE,
	"next":       KEY_NEXTSONG,
	"previous":   KEY_PREVIOUSSONG,
	"stop":       KEY_STOPCD,
	"mute":       KEY_MUTE,
	"volumeup":   KEY_VOLUMEUP,
	"volumedown": KEY_VOLUMEDOWN,
}
