// Package speech drives a continuous speech recognizer: start/stop/toggle,
// auto-restart after recognizer-initiated ends, interim preview versus final
// dictation, and the spoken stop command.
package speech

import "strings"

// DefaultStopPhrase ends a dictation session when it appears in a final
// result. Matching is a case-insensitive substring test.
const DefaultStopPhrase = "stop recording"

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseListening Phase = "listening"
	// PhaseStopping is observed while the session releases its recognizer.
	PhaseStopping Phase = "stopping"
)

// Permission is the last known microphone permission.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ErrorCode is a recognizer error as reported by the capture backend.
type ErrorCode string

const (
	ErrNotAllowed          ErrorCode = "not-allowed"
	ErrNoSpeech            ErrorCode = "no-speech"
	ErrAborted             ErrorCode = "aborted"
	ErrAudioCapture        ErrorCode = "audio-capture"
	ErrNetwork             ErrorCode = "network"
	ErrServiceNotAllowed   ErrorCode = "service-not-allowed"
	ErrLanguageUnsupported ErrorCode = "language-not-supported"
)

// Transient reports whether the error leaves the session running.
func (c ErrorCode) Transient() bool {
	return c == ErrNoSpeech || c == ErrAborted
}

// Result is one fragment of a recognizer update.
type Result struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// State is the observable session state plus the restart intent.
type State struct {
	Phase       Phase      `json:"phase"`
	InterimText string     `json:"interimText"`
	Permission  Permission `json:"permission"`
	Supported   bool       `json:"supported"`

	shouldRestart bool
	closed        bool
}

// NewState returns the initial idle state.
func NewState(supported bool) State {
	return State{Phase: PhaseIdle, Permission: PermissionUnknown, Supported: supported}
}

// Listening reports whether the session is capturing.
func (s State) Listening() bool { return s.Phase == PhaseListening }

// Restarting reports whether a recognizer end would be followed by a restart.
func (s State) Restarting() bool { return s.shouldRestart }

// EventKind names an input to the transition function.
type EventKind int

const (
	EventStart EventKind = iota
	EventStop
	EventToggle
	EventResults
	EventEnd
	EventError
	EventClose
	EventReleased
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventToggle:
		return "toggle"
	case EventResults:
		return "results"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event is a user command or recognizer callback fed to Step.
type Event struct {
	Kind    EventKind
	Results []Result
	Code    ErrorCode
}

// Effects are the side effects a transition asks the session to perform.
type Effects struct {
	StartRecognizer   bool
	StopRecognizer    bool
	RestartRecognizer bool
	ReleaseRecognizer bool
	// Deliver is final text for the content sink; empty means nothing.
	Deliver string
	// Command is set when a final batch was consumed as the stop command.
	Command bool
}

// Machine is the pure transition function of a session.
type Machine struct {
	StopPhrase string
}

// Step applies e to s using the default stop phrase.
func Step(s State, e Event) (State, Effects) {
	return Machine{StopPhrase: DefaultStopPhrase}.Step(s, e)
}

// Step returns the state following e and the effects to perform. It never
// touches a recognizer.
func (m Machine) Step(s State, e Event) (State, Effects) {
	var fx Effects
	if s.closed && e.Kind != EventReleased {
		return s, fx
	}

	switch e.Kind {
	case EventToggle:
		if s.Phase == PhaseListening {
			return m.Step(s, Event{Kind: EventStop})
		}
		return m.Step(s, Event{Kind: EventStart})

	case EventStart:
		if !s.Supported || s.Phase != PhaseIdle {
			return s, fx
		}
		s.shouldRestart = true
		s.Phase = PhaseListening
		// optimistic; a denial is reported again by the recognizer
		s.Permission = PermissionGranted
		fx.StartRecognizer = true

	case EventStop:
		fx.StopRecognizer = s.Phase == PhaseListening
		s = stopped(s)

	case EventResults:
		var interim, final strings.Builder
		for _, r := range e.Results {
			if r.Final {
				final.WriteString(r.Text)
			} else {
				interim.WriteString(r.Text)
			}
		}
		if s.Phase == PhaseListening {
			s.InterimText = interim.String()
		}
		text := final.String()
		if text == "" {
			break
		}
		if m.isStopCommand(text) {
			fx.Command = true
			fx.StopRecognizer = s.Phase == PhaseListening
			s = stopped(s)
			break
		}
		fx.Deliver = text

	case EventEnd:
		if s.shouldRestart {
			s.Phase = PhaseListening
			fx.RestartRecognizer = true
			break
		}
		s.InterimText = ""
		s.Phase = PhaseIdle

	case EventError:
		if e.Code == ErrNotAllowed {
			s.Permission = PermissionDenied
		}
		if e.Code.Transient() {
			break
		}
		fx.StopRecognizer = s.Phase == PhaseListening
		s = stopped(s)

	case EventClose:
		s.shouldRestart = false
		s.InterimText = ""
		s.Phase = PhaseStopping
		s.closed = true
		fx.ReleaseRecognizer = true

	case EventReleased:
		s.Phase = PhaseIdle
	}
	return s, fx
}

func (m Machine) isStopCommand(text string) bool {
	phrase := strings.ToLower(strings.TrimSpace(m.StopPhrase))
	if phrase == "" {
		phrase = DefaultStopPhrase
	}
	return strings.Contains(strings.ToLower(strings.TrimSpace(text)), phrase)
}

func stopped(s State) State {
	s.shouldRestart = false
	s.InterimText = ""
	s.Phase = PhaseIdle
	return s
}
