package safe

import (
	"IMCore/logger"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}

// Recover is the deferred form of SafeGo, for callbacks that run on
// goroutines we do not own (e.g. time.AfterFunc).
func Recover() {
	if r := recover(); r != nil {
		logger.Errorf("[safe.Recover] panic recovered: %v", r)
	}
}
