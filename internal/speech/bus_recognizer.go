package speech

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
)

// BusCapability drives a recognizer running on an edge device. Control
// messages go out on stt.control.<session>; results, ends and errors come
// back on stt.results, stt.end and stt.error.
type BusCapability struct {
	Client    *bus.Client
	SessionID string
}

func (c *BusCapability) NewRecognizer(opts Options, h Handler) (Recognizer, error) {
	if c.Client == nil || c.Client.Conn() == nil {
		return nil, ErrUnsupported
	}
	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = "default"
	}
	r := &busRecognizer{
		client:    c.Client,
		sessionID: sessionID,
		language:  opts.Language,
		handler:   h,
		log:       c.Client.Logger().With(slog.String("component", "speech-bus"), slog.String("session_id", sessionID)),
	}
	if err := r.subscribe(); err != nil {
		r.unsubscribe()
		return nil, err
	}
	return r, nil
}

type busRecognizer struct {
	client    *bus.Client
	sessionID string
	language  string
	handler   Handler
	log       *slog.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

// subscribe uses one wildcard subscription so results, ends and errors for
// the session reach the handler in publish order.
func (r *busRecognizer) subscribe() error {
	conn := r.client.Conn()
	subject := protocol.Subject("stt.*", r.sessionID)
	sub, err := conn.Subscribe(subject, r.route)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	r.sub = sub
	return conn.Flush()
}

func (r *busRecognizer) unsubscribe() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
		r.sub = nil
	}
}

func (r *busRecognizer) route(msg *nats.Msg) {
	switch msg.Subject {
	case protocol.Subject(protocol.SubjectSpeechResultsPrefix, r.sessionID):
		r.handleResults(msg)
	case protocol.Subject(protocol.SubjectSpeechEndPrefix, r.sessionID):
		r.handleEnd(msg)
	case protocol.Subject(protocol.SubjectSpeechErrorPrefix, r.sessionID):
		r.handleError(msg)
	default:
		// our own control messages match the wildcard too
	}
}

func (r *busRecognizer) Start() error {
	return r.control(protocol.ActionStart)
}

func (r *busRecognizer) Stop() error {
	return r.control(protocol.ActionStop)
}

func (r *busRecognizer) control(action string) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errors.New("recognizer closed")
	}
	msg := protocol.SpeechControl{SessionID: r.sessionID, Action: action, Language: r.language}
	return r.client.PublishJSON(protocol.Subject(protocol.SubjectSpeechControlPrefix, r.sessionID), msg)
}

func (r *busRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.unsubscribe()
	return nil
}

func (r *busRecognizer) handleResults(msg *nats.Msg) {
	var payload protocol.SpeechResults
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		r.log.Warn("failed to decode speech results", slogError(err))
		return
	}
	batch := make([]Result, 0, len(payload.Results))
	for _, res := range payload.Results {
		batch = append(batch, Result{Text: res.Text, Final: res.Final})
	}
	if len(batch) > 0 {
		r.handler.HandleResults(batch)
	}
}

func (r *busRecognizer) handleEnd(*nats.Msg) {
	r.handler.HandleEnd()
}

func (r *busRecognizer) handleError(msg *nats.Msg) {
	var payload protocol.SpeechError
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		r.log.Warn("failed to decode speech error", slogError(err))
		return
	}
	if payload.Message != "" {
		r.log.Debug("edge recognizer error", slog.String("code", payload.Code), slog.String("message", payload.Message))
	}
	r.handler.HandleError(ErrorCode(payload.Code))
}
