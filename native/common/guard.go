package common

import "errors"

// ErrModulePaused is returned by mutating commands while a module is paused.
var ErrModulePaused = errors.New("module paused")

// ModuleAuction names the auction module in pause lookups.
const ModuleAuction = "auction"

type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when p reports module as paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
