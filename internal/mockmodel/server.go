// Package mockmodel is an in-process stand-in for the inference server,
// used by harness tests and local development. It speaks the same wire
// surface: health, generation with optional streaming, and the vision
// probe with license enforcement.
package mockmodel

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// maxTokensCap bounds generated output regardless of the request
const maxTokensCap = 2048

// State holds mutable server behavior, adjustable through the test
// control endpoint
type State struct {
	mu sync.Mutex

	TokenDelay     time.Duration
	FailGenerate   bool
	VisionLicensed bool
	Backend        string
}

// NewState creates default mock state
func NewState() *State {
	return &State{Backend: "cpu"}
}

func (s *State) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		TokenDelay:     s.TokenDelay,
		FailGenerate:   s.FailGenerate,
		VisionLicensed: s.VisionLicensed,
		Backend:        s.Backend,
	}
}

// Server is the mock inference server
type Server struct {
	state  *State
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new mock model server
func NewServer(state *State) *Server {
	if state == nil {
		state = NewState()
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		state:  state,
		router: router,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// State returns the underlying state for test manipulation
func (s *Server) State() *State {
	return s.state
}

// Run serves on the given address until the process exits
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/generate", s.handleGenerate)
	s.router.POST("/v1/vision", s.handleVision)

	// Test control endpoint
	s.router.POST("/_test/config", s.handleTestConfig)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// generateRequest matches the inference server's generation request
type generateRequest struct {
	Model       string  `json:"model" binding:"required"`
	Prompt      string  `json:"prompt" binding:"required"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

var wordBank = []string{
	"the", "model", "processes", "each", "token", "through", "its",
	"active", "experts", "and", "routes", "hidden", "states", "across",
	"layers", "before", "sampling", "a", "response",
}

// synthesize produces a deterministic token sequence for the request
func synthesize(prompt string, maxTokens int) []string {
	if maxTokens <= 0 || maxTokens > maxTokensCap {
		maxTokens = maxTokensCap
	}
	out := make([]string, 0, maxTokens)
	offset := len(prompt)
	for i := 0; i < maxTokens; i++ {
		out = append(out, wordBank[(offset+i)%len(wordBank)])
	}
	return out
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := s.state.snapshot()
	if st.FailGenerate {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "model not loaded"})
		return
	}

	tokens := synthesize(req.Prompt, req.MaxTokens)

	if !req.Stream {
		if st.TokenDelay > 0 {
			time.Sleep(time.Duration(len(tokens)) * st.TokenDelay)
		}
		c.JSON(http.StatusOK, gin.H{"response": strings.Join(tokens, " ")})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	for i, tok := range tokens {
		if st.TokenDelay > 0 {
			time.Sleep(st.TokenDelay)
		}
		if i < len(tokens)-1 {
			tok += " "
		}
		fmt.Fprintf(c.Writer, "data: %s\n", tok)
		c.Writer.Flush()
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n")
	c.Writer.Flush()
}

// visionRequest matches the inference server's vision request
type visionRequest struct {
	Mode        string `json:"mode"`
	TimeoutMS   int    `json:"timeout_ms"`
	Raw         bool   `json:"raw"`
	Filename    string `json:"filename"`
	ImageBase64 string `json:"image_base64"`
}

func (s *Server) handleVision(c *gin.Context) {
	var req visionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := s.state.snapshot()
	if !st.VisionLicensed {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "License required"})
		return
	}

	start := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"text_blocks": []gin.H{
			{"text": "MOCK TEXT BLOCK", "confidence": 0.99},
		},
		"meta": gin.H{
			"duration_ms":    time.Since(start).Milliseconds(),
			"backend":        st.Backend,
			"parse_warnings": []string{},
		},
	})
}

// testConfigRequest adjusts mock behavior at runtime
type testConfigRequest struct {
	TokenDelayMS   *int    `json:"token_delay_ms"`
	FailGenerate   *bool   `json:"fail_generate"`
	VisionLicensed *bool   `json:"vision_licensed"`
	Backend        *string `json:"backend"`
}

func (s *Server) handleTestConfig(c *gin.Context) {
	var req testConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.state.mu.Lock()
	if req.TokenDelayMS != nil {
		s.state.TokenDelay = time.Duration(*req.TokenDelayMS) * time.Millisecond
	}
	if req.FailGenerate != nil {
		s.state.FailGenerate = *req.FailGenerate
	}
	if req.VisionLicensed != nil {
		s.state.VisionLicensed = *req.VisionLicensed
	}
	if req.Backend != nil {
		s.state.Backend = *req.Backend
	}
	s.state.mu.Unlock()

	s.logger.Debug("mock config updated")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
