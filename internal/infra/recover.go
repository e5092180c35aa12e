package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it after a panic. maxPanics < 0 restarts
// forever, 0 makes the next panic fatal.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		if err := recover(); err != nil {
			entry := log.WithField("context", "recover").WithField("job", id)
			entry.WithField("source", identifyPanic()).Errorf("job panics: %v", err)
			if maxPanics == 0 {
				entry.Fatal("panics limit exceeded, exiting")
			}
			if maxPanics > 0 {
				maxPanics--
			}
			entry.WithField("panics_left", maxPanics).Debug("recovering job")
			go GoRecoverable(maxPanics, id, f)
		}
	}()
	f()
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}
	return fmt.Sprintf("pc:%x", pc)
}
