package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clarifai/backend/pkg/logger"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// NewStream opens a live transcription stream. Without an API key it
// degrades to the demo stream so the rest of the pipeline stays
// usable in development.
func NewStream(ctx context.Context, cfg Config) (Stream, error) {
	if cfg.APIKey == "" {
		logger.Warn("No transcription API key configured, using demo stream")
		return newDemoStream(), nil
	}
	return dialDeepgram(ctx, cfg)
}

// deepgramStream proxies audio to the Deepgram listen socket. The
// server side of our API stays on the fiber websocket stack; gorilla
// is only used here for the outbound client dial.
type deepgramStream struct {
	conn    *websocket.Conn
	results chan Result
	buf     buffer

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func dialDeepgram(ctx context.Context, cfg Config) (*deepgramStream, error) {
	query := url.Values{}
	query.Set("model", cfg.Model)
	query.Set("language", cfg.Language)
	query.Set("tier", cfg.Tier)
	query.Set("smart_format", "true")
	query.Set("interim_results", "true")
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	query.Set("endpointing", strconv.Itoa(cfg.Endpointing))

	header := http.Header{}
	header.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, deepgramListenURL+"?"+query.Encode(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial transcription service: %w", err)
	}

	s := &deepgramStream{
		conn:    conn,
		results: make(chan Result, 16),
	}

	logger.Info("Transcription stream opened",
		zap.String("model", cfg.Model),
		zap.String("language", cfg.Language),
	)

	go s.readLoop()

	return s, nil
}

// deepgramMessage is the slice of the vendor response we consume.
type deepgramMessage struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop() {
	defer close(s.results)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			logger.Debug("Transcription stream closed", zap.Error(err))
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Unparseable transcription message", zap.Error(err))
			continue
		}
		if len(msg.Channel.Alternatives) == 0 {
			continue
		}

		text := msg.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}

		if msg.IsFinal {
			s.buf.append(text)
		}

		// The buffer already holds every final fragment, so dropping
		// a fragment on a slow consumer loses nothing durable.
		select {
		case s.results <- Result{Text: text, IsFinal: msg.IsFinal}:
		default:
			logger.Debug("Dropping transcription fragment, consumer behind")
		}
	}
}

func (s *deepgramStream) Send(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to forward audio chunk: %w", err)
	}
	return nil
}

func (s *deepgramStream) Results() <-chan Result {
	return s.results
}

func (s *deepgramStream) Transcript() string {
	return s.buf.snapshot()
}

func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// An empty binary frame tells the vendor to flush and finish.
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.BinaryMessage, []byte{})
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
