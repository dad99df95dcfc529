package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"firewatch-worker-go/internal/logging"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// DashboardData is rendered into the index page.
type DashboardData struct {
	WorkerID              string
	Device                string
	Channels              []string
	StreamFPS             float64
	EffectiveInferenceFPS float64
	SensorPollMs          int64
}

type DashboardHandler struct {
	data      DashboardData
	staticDir string
}

func NewDashboardHandler(data DashboardData, staticDir string) *DashboardHandler {
	if data.SensorPollMs <= 0 {
		data.SensorPollMs = 1000
	}
	return &DashboardHandler{data: data, staticDir: staticDir}
}

// @Summary Dashboard
// @Description HTML page with the annotated feed, sensor panel and live pipeline stats
// @Tags dashboard
// @Produce html
// @Success 200
// @Router / [get]
func (h *DashboardHandler) Index(c *gin.Context) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, h.data); err != nil {
		logging.Error(c).Err(err).Msg("Failed to render dashboard")
		c.String(http.StatusInternalServerError, "failed to render dashboard")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// @Summary Favicon
// @Tags dashboard
// @Success 200
// @Success 204
// @Router /favicon.ico [get]
func (h *DashboardHandler) Favicon(c *gin.Context) {
	h.serveFile(c, "favicon.ico")
}

// @Summary Static asset
// @Description Files under STATIC_DIR. Missing files answer 204.
// @Tags dashboard
// @Param filepath path string true "Asset path"
// @Success 200
// @Success 204
// @Router /static/{filepath} [get]
func (h *DashboardHandler) Static(c *gin.Context) {
	h.serveFile(c, c.Param("filepath"))
}

func (h *DashboardHandler) serveFile(c *gin.Context, name string) {
	path, ok := h.resolve(name)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.Status(http.StatusNoContent)
		return
	}
	c.File(path)
}

// resolve maps a request path into staticDir, refusing anything that escapes it.
func (h *DashboardHandler) resolve(name string) (string, bool) {
	if h.staticDir == "" {
		return "", false
	}
	name = strings.TrimPrefix(filepath.Clean("/"+name), "/")
	if name == "" || name == "." {
		return "", false
	}
	root, err := filepath.Abs(h.staticDir)
	if err != nil {
		return "", false
	}
	path := filepath.Join(root, name)
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}
