package element

// Method and argument names exposed through the dispatcher.
const (
	MethodRun        = "run"
	MethodStop       = "stop"
	MethodPause      = "pause"
	MethodResume     = "resume"
	MethodReset      = "reset"
	MethodSetTimeout = "set_timeout"
	MethodGetState   = "get_state"

	ArgWaitMs = "wait_ms"
	ArgState  = "state"
)

const (
	MethodALCSetGain = "set_gain"
	MethodALCGetGain = "get_gain"

	ArgIdx  = "idx"
	ArgGain = "gain"
)

const (
	MethodEQSetPara      = "set_para"
	MethodEQGetPara      = "get_para"
	MethodEQEnableFilter = "enable_filter"

	ArgFilterType = "type"
	ArgFc         = "fc"
	ArgQ          = "q"
	ArgEnable     = "enable"
)

const (
	MethodSetFPS     = "set_fps"
	MethodSetCropRgn = "set_crop_rgn"

	ArgFPS    = "fps"
	ArgX      = "x"
	ArgY      = "y"
	ArgWidth  = "width"
	ArgHeight = "height"
)
