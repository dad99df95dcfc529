package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"firewatch-worker-go/internal/logging"
	"firewatch-worker-go/internal/services/pipeline"
	"firewatch-worker-go/internal/services/publisher/mjpeg"
)

// FeedSource hands out per-connection readers bound to one slot.
type FeedSource interface {
	Reader(feed pipeline.Feed) (mjpeg.FrameReader, error)
}

// MJPEGServer writes a multipart stream until the client goes away.
type MJPEGServer interface {
	ServeMJPEG(w http.ResponseWriter, r *http.Request, feed string, reader mjpeg.FrameReader)
}

type StreamHandler struct {
	feeds     FeedSource
	publisher MJPEGServer
}

func NewStreamHandler(feeds FeedSource, publisher MJPEGServer) *StreamHandler {
	return &StreamHandler{feeds: feeds, publisher: publisher}
}

// @Summary Annotated video feed
// @Description MJPEG stream of the newest annotated frame, paced at STREAM_FPS
// @Tags stream
// @Produce multipart/x-mixed-replace
// @Success 200
// @Router /video_feed [get]
func (h *StreamHandler) VideoFeed(c *gin.Context) {
	h.serve(c, pipeline.FeedAnnotated)
}

// @Summary Raw video feed
// @Description MJPEG stream of the newest captured frame, paced at STREAM_FPS
// @Tags stream
// @Produce multipart/x-mixed-replace
// @Success 200
// @Router /video_feed_raw [get]
func (h *StreamHandler) VideoFeedRaw(c *gin.Context) {
	h.serve(c, pipeline.FeedRaw)
}

func (h *StreamHandler) serve(c *gin.Context, feed pipeline.Feed) {
	c.Set(logging.KeyFeed, string(feed))
	reader, err := h.feeds.Reader(feed)
	if err != nil {
		logging.Error(c).Err(err).Msg("Feed unavailable")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	logging.Debug(c).Msg("Opening MJPEG stream")
	h.publisher.ServeMJPEG(c.Writer, c.Request, string(feed), reader)
}
