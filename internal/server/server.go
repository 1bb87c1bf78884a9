// Package server exposes the model over a read-only JSON API.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/skroot/internal/graph"
	"github.com/roach88/skroot/internal/model"
)

// Querier is the read surface the API needs. *model.Model implements it.
type Querier interface {
	WithModel(fn func(s *graph.Store) error) error
	FileByID(id graph.FileID) (graph.FileNode, error)
	ProcessByID(id graph.ProcessID) (graph.ProcessNode, error)
	RootFiles() []graph.FileNode
	RootProcesses() []graph.ProcessNode
	FileDependencies(id graph.FileID) ([]graph.FileNode, error)
	ProcessDependencies(id graph.FileID) ([]graph.ProcessNode, error)
	Progress() (consumed, total int64, err error)
	LastModified() (time.Time, error)
	Stats() model.Stats
}

// ModelStatus is the body of GET /api/v1/model.
type ModelStatus struct {
	Path          string      `json:"path"`
	LastModified  time.Time   `json:"last_modified"`
	Size          int64       `json:"size"`
	BytesLoaded   int64       `json:"bytes_loaded"`
	Progress      float64     `json:"progress"`
	Files         int         `json:"files"`
	Processes     int         `json:"processes"`
	ParseTime     string      `json:"parse_time"`
	State         model.State `json:"state"`
	LoadID        string      `json:"load_id"`
	SkippedLines  int64       `json:"skipped_lines"`
	RejectedCount int64       `json:"rejected_records"`
}

// Server holds the handlers' dependencies.
type Server struct {
	q        Querier
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New creates a Server. A nil gatherer disables /metrics.
func New(q Querier, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{q: q, gatherer: gatherer, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.health)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/model", s.modelStatus)

		v1.GET("/files", s.rootFiles)
		v1.GET("/files/:id", s.file)
		v1.GET("/files/:id/children", s.fileChildren)
		v1.GET("/files/:id/writers", s.fileWriters)
		v1.GET("/files/:id/readers", s.fileReaders)
		v1.GET("/files/:id/file_dependencies", s.fileDependencies)
		v1.GET("/files/:id/proc_dependencies", s.procDependencies)

		v1.GET("/processes", s.rootProcesses)
		v1.GET("/processes/:id", s.process)
		v1.GET("/processes/:id/children", s.processChildren)
	}
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) modelStatus(c *gin.Context) {
	consumed, total, err := s.q.Progress()
	if err != nil {
		s.logger.Warn("model status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stat trace log"})
		return
	}
	modified, err := s.q.LastModified()
	if err != nil {
		s.logger.Warn("model status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stat trace log"})
		return
	}

	stats := s.q.Stats()
	progress := 1.0
	if total > 0 {
		progress = float64(consumed) / float64(total)
	}
	c.JSON(http.StatusOK, ModelStatus{
		Path:          stats.Path,
		LastModified:  modified,
		Size:          total,
		BytesLoaded:   consumed,
		Progress:      progress,
		Files:         stats.Files,
		Processes:     stats.Processes,
		ParseTime:     stats.ParseTime.String(),
		State:         stats.State,
		LoadID:        stats.LoadID,
		SkippedLines:  stats.SkippedLines,
		RejectedCount: stats.RejectedRecords,
	})
}

func (s *Server) rootFiles(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(s.q.RootFiles()))
}

func (s *Server) rootProcesses(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(s.q.RootProcesses()))
}

func (s *Server) file(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	f, err := s.q.FileByID(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) process(c *gin.Context) {
	id, ok := processID(c)
	if !ok {
		return
	}
	p, err := s.q.ProcessByID(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) fileChildren(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	var out []graph.FileNode
	err := s.q.WithModel(func(st *graph.Store) error {
		f, found := st.File(id)
		if !found {
			return model.ErrNotFound
		}
		out = make([]graph.FileNode, 0, len(f.Children))
		for _, cid := range f.Children {
			child, _ := st.File(cid)
			out = append(out, child.Clone())
		}
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) fileWriters(c *gin.Context) {
	s.fileAccessors(c, func(f *graph.FileNode) []graph.ProcessID { return f.Writers })
}

func (s *Server) fileReaders(c *gin.Context) {
	s.fileAccessors(c, func(f *graph.FileNode) []graph.ProcessID { return f.Readers })
}

func (s *Server) fileAccessors(c *gin.Context, pick func(*graph.FileNode) []graph.ProcessID) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	var out []graph.ProcessNode
	err := s.q.WithModel(func(st *graph.Store) error {
		f, found := st.File(id)
		if !found {
			return model.ErrNotFound
		}
		ids := pick(f)
		out = make([]graph.ProcessNode, 0, len(ids))
		for _, pid := range ids {
			p, _ := st.Process(pid)
			out = append(out, p.Clone())
		}
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) processChildren(c *gin.Context) {
	id, ok := processID(c)
	if !ok {
		return
	}
	var out []graph.ProcessNode
	err := s.q.WithModel(func(st *graph.Store) error {
		p, found := st.Process(id)
		if !found {
			return model.ErrNotFound
		}
		out = make([]graph.ProcessNode, 0, len(p.Children))
		for _, cid := range p.Children {
			child, _ := st.Process(cid)
			out = append(out, child.Clone())
		}
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) fileDependencies(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	deps, err := s.q.FileDependencies(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, deps)
}

func (s *Server) procDependencies(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	deps, err := s.q.ProcessDependencies(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, deps)
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("query failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return 0, false
	}
	return id, true
}

func fileID(c *gin.Context) (graph.FileID, bool) {
	id, ok := parseID(c)
	return graph.FileID(id), ok
}

func processID(c *gin.Context) (graph.ProcessID, bool) {
	id, ok := parseID(c)
	return graph.ProcessID(id), ok
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
