//go:build !debug

package engine

// assertNotLocked is a no-op outside debug builds.
func (e *Engine) assertNotLocked() {}

func (e *Engine) clearLocked() {}
