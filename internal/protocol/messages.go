// Package protocol defines the bus subjects and JSON payloads exchanged with
// edge devices and other listeners.
package protocol

import "time"

const (
	SubjectSpeechControlPrefix = "stt.control"
	SubjectSpeechResultsPrefix = "stt.results"
	SubjectSpeechEndPrefix     = "stt.end"
	SubjectSpeechErrorPrefix   = "stt.error"

	SubjectNotesChanged = "notes.changed"

	SubjectTTSAudio = "tts.audio.out"
	SubjectTTSDone  = "tts.done"
)

// Subject joins a per-session prefix with a session id.
func Subject(prefix, sessionID string) string {
	return prefix + "." + sessionID
}

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// SpeechControl asks an edge recognizer to begin or halt capture.
type SpeechControl struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Language  string `json:"language,omitempty"`
}

// SpeechResult is one interim or final fragment of a recognizer update.
type SpeechResult struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// SpeechResults is one recognizer update batch.
type SpeechResults struct {
	SessionID string         `json:"session_id"`
	Results   []SpeechResult `json:"results"`
}

// SpeechEnd reports that the recognizer ended its capture session.
type SpeechEnd struct {
	SessionID string `json:"session_id"`
}

// SpeechError carries a recognizer error code such as "no-speech".
type SpeechError struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
}

// NoteChanged is broadcast after a note mutation has been persisted.
type NoteChanged struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Title     string    `json:"title,omitempty"`
	WordCount int       `json:"word_count"`
	CharCount int       `json:"char_count"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioChunk is a slice of synthesized PCM audio for read-aloud playback.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	NoteID     string `json:"note_id,omitempty"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// TTSStatus reports the end of a read-aloud, completed or not.
type TTSStatus struct {
	SessionID string    `json:"session_id"`
	NoteID    string    `json:"note_id,omitempty"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
