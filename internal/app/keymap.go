package app

// Key binding constants used by the key handlers.
const (
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeyEsc        = "esc"
	KeyTab        = "tab"
	KeyShiftTab   = "shift+tab"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeyEnter      = "enter"
	KeyUpload     = "u"
	KeyDelete     = "d"
	KeyConfirm    = "y"
	KeyRefresh    = "r"
	KeyFilter     = "t"
	KeyLogout     = "l"
	KeyToggleMode = "ctrl+r"
	KeyTogglePlay = "ctrl+p"
)
