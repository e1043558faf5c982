package debug

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (provisioning results, board)
	LevelLive    = 2 // Live info (pin writes, pipeline stages)
	LevelVerbose = 3 // Verbose (resolved paths, decoded registers)
	LevelTrace   = 4 // Trace (every sysfs access)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *zerolog.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (provisioned pins, board identity)
// 2 = live info (pipeline stages, digital/pwm writes)
// 3 = verbose (resolved paths, decoded mux registers)
// 4 = trace (every sysfs read and write)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects log output, e.g. to also feed the web status stream.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	if level <= LevelOff {
		logger = nil
		return
	}
	l := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.TimeOnly + ".000",
		NoColor:    true,
	}).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "bonehal").Logger()
	logger = &l
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

func event(minLevel int, zl zerolog.Level) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel || logger == nil {
		return nil
	}
	return logger.WithLevel(zl)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if e := event(LevelInfo, zerolog.InfoLevel); e != nil {
		e.Msgf(format, args...)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if e := event(LevelInfo, zerolog.InfoLevel); e != nil {
		e.Interface("value", value).Msg(name)
	}
}

// Section prints a section title (level 1).
func Section(name string) {
	if e := event(LevelInfo, zerolog.InfoLevel); e != nil {
		e.Msg("── " + name + " ──")
	}
}

// Step prints a numbered initialization step (level 1).
func Step(n int, desc string) {
	if e := event(LevelInfo, zerolog.InfoLevel); e != nil {
		e.Int("step", n).Msg(desc)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if e := event(LevelLive, zerolog.InfoLevel); e != nil {
		e.Msgf(format, args...)
	}
}

// Stage prints a provisioning pipeline stage for a pin (level 2).
func Stage(pin, stage string, detail interface{}) {
	if e := event(LevelLive, zerolog.InfoLevel); e != nil {
		e.Str("pin", pin).Str("stage", stage).Interface("detail", detail).Msg("provision")
	}
}

// PWM prints a PWM update (level 2).
func PWM(channel string, periodNs, dutyNs int64) {
	if e := event(LevelLive, zerolog.InfoLevel); e != nil {
		e.Str("channel", channel).Int64("period_ns", periodNs).Int64("duty_ns", dutyNs).Msg("pwm")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if e := event(LevelVerbose, zerolog.DebugLevel); e != nil {
		e.Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if e := event(LevelVerbose, zerolog.DebugLevel); e != nil {
		e.Msgf("%s: %+v", name, v)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, sysfs).
func Trace(format string, args ...interface{}) {
	if e := event(LevelTrace, zerolog.TraceLevel); e != nil {
		e.Msgf(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if e := event(LevelTrace, zerolog.TraceLevel); e != nil {
		e.Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if e := event(LevelInfo, zerolog.ErrorLevel); e != nil {
		e.Err(err).Msg("error")
	}
}
