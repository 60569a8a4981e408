package guard

import "errors"

// Sentinel errors returned by Admit, matched with errors.Is by callers
// that need to distinguish rejection reasons (e.g. to choose a chat
// reply template).
var (
	ErrCooldown       = errors.New("cooldown active")
	ErrConcurrencyCap = errors.New("concurrency cap reached")
	ErrRAMPressure    = errors.New("system RAM pressure")
)
