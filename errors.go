// go-wildmidi
// Licensed under MIT

package wildmidi

import "fmt"

// Error is the closed error enumeration of §6/§7: every public-facing
// failure reduces to one of these codes, mirroring the original C API's
// int error constants without resurrecting an errno-style numbering.
type Error int

const (
	ErrorNone Error = iota
	ErrorMemory
	ErrorStat
	ErrorLoad
	ErrorOpen
	ErrorRead
	ErrorInvalid
	ErrorCorrupt
	ErrorNotInit
	ErrorInvalidArg
	ErrorAlreadyInit
	ErrorNotMidi
	ErrorFileTooLong
	ErrorNotHmp
	ErrorNotHmi
	ErrorConvertFailed
	ErrorNotMus
	ErrorNotXmi
)

func (e Error) String() string {
	switch e {
	case ErrorNone:
		return "no error"
	case ErrorMemory:
		return "memory allocation failure"
	case ErrorStat:
		return "unable to stat file"
	case ErrorLoad:
		return "unable to load file"
	case ErrorOpen:
		return "unable to open file"
	case ErrorRead:
		return "unable to read file"
	case ErrorInvalid:
		return "invalid input"
	case ErrorCorrupt:
		return "file is corrupt"
	case ErrorNotInit:
		return "engine not initialised"
	case ErrorInvalidArg:
		return "invalid argument"
	case ErrorAlreadyInit:
		return "engine already initialised"
	case ErrorNotMidi:
		return "not a MIDI file"
	case ErrorFileTooLong:
		return "file too long"
	case ErrorNotHmp:
		return "not an HMP file"
	case ErrorNotHmi:
		return "not an HMI file"
	case ErrorConvertFailed:
		return "conversion failed"
	case ErrorNotMus:
		return "not a MUS file"
	case ErrorNotXmi:
		return "not an XMI file"
	default:
		return fmt.Sprintf("Error(%d)", int(e))
	}
}

// wmError pairs a closed Error code with the formatted, optionally
// errno-annotated message the reference get_error() reports (§6). It
// implements the standard error interface so callers that only want
// idiomatic Go error handling never have to look at the code.
type wmError struct {
	code Error
	msg  string
	err  error
}

func (e *wmError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("wildmidi: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("wildmidi: %s", e.msg)
}

func (e *wmError) Unwrap() error { return e.err }

func newError(code Error, msg string, cause error) *wmError {
	return &wmError{code: code, msg: msg, err: cause}
}

// recordError stashes err in the engine's last-error slot (§5: "the
// error-reporting slot is process-wide; readers must treat it as
// last-writer-wins") and returns it unchanged, so call sites can
// `return e.recordError(...)`.
func (e *Engine) recordError(err error) error {
	e.errMu.Lock()
	if we, ok := err.(*wmError); ok {
		e.lastErr = we
	} else if err != nil {
		e.lastErr = newError(ErrorInvalid, err.Error(), nil)
	}
	e.errMu.Unlock()

	if e.log != nil && err != nil {
		e.log.Error("operation failed", "err", err)
	}
	return err
}

// GetError returns the last error code and formatted message recorded
// against this engine, matching the reference get_error()/get_string
// pairing.
func (e *Engine) GetError() (Error, string) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.lastErr == nil {
		return ErrorNone, ErrorNone.String()
	}
	return e.lastErr.code, e.lastErr.Error()
}

// ClearError resets the last-error slot (§6 "clear_error").
func (e *Engine) ClearError() {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.lastErr = nil
}
