package components

// Navigation keys. Vim motions mirror the arrows everywhere.
const (
	KeyUp      = "up"
	KeyDown    = "down"
	KeyVimUp   = "k"
	KeyVimDown = "j"
	KeyTab     = "tab"
	KeyEnter   = "enter"
	KeyEscape  = "esc"
)

// Action keys, active on the board outside modal input.
const (
	KeyQuit        = "q"
	KeyQuitAlt     = "ctrl+c"
	KeyNewWorktree = "n"
	KeyStartAgent  = "a"
	KeyStopAgent   = "x"
	KeySync        = "s"
	KeySession     = "S"
	KeyDelete      = "d"
	KeyRefresh     = "r"
)

// Viewport paging inside the run inspector.
const (
	KeyPageUp   = "pgup"
	KeyPageDown = "pgdown"
	KeyHome     = "home"
	KeyEnd      = "end"
)

// IsNavUp reports whether key moves a cursor up.
func IsNavUp(key string) bool {
	return key == KeyUp || key == KeyVimUp
}

// IsNavDown reports whether key moves a cursor down.
func IsNavDown(key string) bool {
	return key == KeyDown || key == KeyVimDown
}
