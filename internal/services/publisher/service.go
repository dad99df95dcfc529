package publisher

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/logging"
	"firewatch-worker-go/internal/services/jpegenc"
	"firewatch-worker-go/internal/services/publisher/mjpeg"
)

// Service serves MJPEG feeds and tracks who is watching them.
type Service struct {
	cfg     *config.Config
	encoder jpegenc.Encoder
	logger  zerolog.Logger

	mu      sync.Mutex
	viewers map[string]*atomic.Int64
	served  atomic.Uint64
	parts   atomic.Uint64
}

// FeedStats describes current viewers of one feed.
type FeedStats struct {
	Viewers int64 `json:"viewers"`
}

// Stats covers all feeds served since startup.
type Stats struct {
	Encoder       string               `json:"encoder"`
	Feeds         map[string]FeedStats `json:"feeds"`
	StreamsServed uint64               `json:"streams_served"`
	PartsWritten  uint64               `json:"parts_written"`
}

func NewService(cfg *config.Config, encoder jpegenc.Encoder) *Service {
	return &Service{
		cfg:     cfg,
		encoder: encoder,
		logger:  logging.NewServiceLogger(cfg, "publisher"),
		viewers: make(map[string]*atomic.Int64),
	}
}

// ServeMJPEG streams reader to the client until it disconnects.
func (s *Service) ServeMJPEG(w http.ResponseWriter, r *http.Request, feed string, reader mjpeg.FrameReader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mjpeg.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	counter := s.counter(feed)
	viewers := counter.Add(1)
	s.served.Add(1)
	logger := logging.WithFeed(s.logger, feed)
	logger.Info().Str("remote", r.RemoteAddr).Int64("viewers", viewers).Msg("MJPEG viewer connected")

	streamer := mjpeg.NewStreamer(reader, s.encoder, s.cfg.JPEGQuality, s.cfg.StreamFPS, s.cfg.EmptySlotDelay)
	err := streamer.Run(r.Context(), w, flusher.Flush)

	viewers = counter.Add(-1)
	s.parts.Add(streamer.Segments())

	if err != nil && r.Context().Err() == nil {
		logger.Debug().Err(err).Msg("MJPEG write failed")
	}
	logger.Info().Uint64("parts", streamer.Segments()).Int64("viewers", viewers).Msg("MJPEG viewer disconnected")
}

func (s *Service) counter(feed string) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.viewers[feed]
	if !ok {
		c = &atomic.Int64{}
		s.viewers[feed] = c
	}
	return c
}

func (s *Service) Stats() Stats {
	st := Stats{
		Encoder:       s.encoder.Name(),
		Feeds:         make(map[string]FeedStats),
		StreamsServed: s.served.Load(),
		PartsWritten:  s.parts.Load(),
	}
	s.mu.Lock()
	for feed, c := range s.viewers {
		st.Feeds[feed] = FeedStats{Viewers: c.Load()}
	}
	s.mu.Unlock()
	return st
}
