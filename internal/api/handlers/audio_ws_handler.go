package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/concepts"
	"github.com/clarifai/backend/internal/metrics"
	"github.com/clarifai/backend/internal/notes"
	"github.com/clarifai/backend/internal/session"
	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/internal/transcription"
	"github.com/clarifai/backend/pkg/logger"
)

// StreamFactory opens a transcription stream for one connection.
// Indirected so tests can substitute the vendor dial.
type StreamFactory func(ctx context.Context) (transcription.Stream, error)

// AudioWSHandler bridges the browser's raw audio websocket to the
// transcription vendor and runs concept extraction on final fragments.
type AudioWSHandler struct {
	newStream StreamFactory
	gen       concepts.Generator
	notes     *notes.Service
	store     *sqlite.Client
	counters  Counters
}

func NewAudioWSHandler(newStream StreamFactory, gen concepts.Generator, notesSvc *notes.Service, store *sqlite.Client, counters Counters) *AudioWSHandler {
	return &AudioWSHandler{
		newStream: newStream,
		gen:       gen,
		notes:     notesSvc,
		store:     store,
		counters:  counters,
	}
}

type audioInitMessage struct {
	UserID    string `json:"user_id"`
	LectureID string `json:"lecture_id"`
}

// HandleAudioToText reads binary audio frames and streams transcript
// fragments back. The first frame must be a JSON init message; after
// that binary frames go to the vendor and a text frame {"stop": true}
// ends the stream.
//
// The vendor result loop is the only writer after init, so the write
// mutex only guards the occasional error frame from the read loop.
func (h *AudioWSHandler) HandleAudioToText(c *websocket.Conn) {
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	defer c.Close()

	var init audioInitMessage
	if err := c.ReadJSON(&init); err != nil {
		logger.Debug("Audio session ended before init", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := h.newStream(ctx)
	if err != nil {
		logger.Error("Failed to open transcription stream", zap.Error(err))
		writeWSError(c, "Transcription service unavailable")
		return
	}
	defer stream.Close()

	sess := session.New(concepts.NewTracker(h.gen))
	sess.UserID = init.UserID
	sess.LectureID = init.LectureID

	logger.Info("Audio session opened",
		zap.String("session_id", sess.ID),
		zap.String("user_id", init.UserID),
	)

	var writeMu sync.Mutex
	done := make(chan struct{})
	go h.forwardResults(c, stream, sess, &writeMu, done)

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			break
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := stream.Send(data); err != nil {
				logger.Warn("Failed to forward audio chunk", zap.Error(err))
			}
		case websocket.TextMessage:
			var ctl struct {
				Stop bool `json:"stop"`
			}
			if json.Unmarshal(data, &ctl) == nil && ctl.Stop {
				stream.Close()
			}
		}
	}

	stream.Close()
	<-done

	h.persistSession(sess)
	logger.Info("Audio session closed", zap.String("session_id", sess.ID))
}

// forwardResults relays vendor fragments to the client and feeds final
// fragments through concept extraction.
func (h *AudioWSHandler) forwardResults(c *websocket.Conn, stream transcription.Stream, sess *session.Session, writeMu *sync.Mutex, done chan struct{}) {
	defer close(done)

	for result := range stream.Results() {
		finalLabel := "false"
		if result.IsFinal {
			finalLabel = "true"
		}
		metrics.TranscriptionFragments.WithLabelValues(finalLabel).Inc()

		reply := map[string]interface{}{
			"status":          "success",
			"transcript":      result.Text,
			"full_transcript": stream.Transcript(),
			"is_final":        result.IsFinal,
		}

		if result.IsFinal {
			full := stream.Transcript()
			previous := sess.SwapTranscript(full)
			extraction := sess.Tracker.Process(context.Background(), full, previous)
			reply["concepts"] = extraction.Concepts
			reply["current_concept"] = extraction.CurrentConcept
			reply["new_content"] = extraction.HasNewContent
		}

		writeMu.Lock()
		err := c.WriteJSON(reply)
		writeMu.Unlock()
		if err != nil {
			logger.Debug("Audio result write failed", zap.Error(err))
			return
		}
	}
}

// persistSession stores the finished lecture the same way the
// transcript-driven endpoint does.
func (h *AudioWSHandler) persistSession(sess *session.Session) {
	if h.store == nil || sess.Transcript() == "" {
		return
	}

	result := sess.Tracker.Process(context.Background(), sess.Transcript(), sess.Transcript())
	persistLecture(h.store, h.notes, h.counters, sess, result)
}
