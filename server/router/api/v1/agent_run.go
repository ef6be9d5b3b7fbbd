package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
	"github.com/hrygo/mailsense/plugin/ai/agent"
)

// heartbeatInterval paces SSE comment frames that keep idle proxies from
// closing the stream mid-run.
const heartbeatInterval = 30 * time.Second

// handleRun executes a run and returns the aggregate result as JSON.
// Events are not surfaced; callers that want progress use the stream.
func (s *APIV1Service) handleRun(c echo.Context) error {
	req, err := bindRunRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	result, err := s.Runner.Run(c.Request().Context(), req, nil)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleRunStream executes a run and streams its events as SSE frames.
// One response serves exactly one run; done is the terminal frame.
func (s *APIV1Service) handleRunStream(c echo.Context) error {
	req, err := bindRunRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	w, err := newSSEWriter(c)
	if err != nil {
		return writeError(c, err)
	}

	// Heartbeats run beside the handler until the run finishes or the
	// client goes away.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.WriteComment("heartbeat"); err != nil {
					return
				}
			case <-stop:
				return
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	if _, err := s.Runner.Run(c.Request().Context(), req, w.WriteEvent); err != nil && !w.WroteAny() {
		// The run failed before the stream carried anything, so a plain
		// HTTP error is still deliverable.
		return writeError(c, err)
	}
	return nil
}

// bindRunRequest decodes the run parameters from the body (POST) or the
// query string (GET), and stamps the authenticated user onto the request.
func bindRunRequest(c echo.Context) (*agent.RunRequest, error) {
	req := &agent.RunRequest{}
	if c.Request().Method == http.MethodGet {
		q := c.QueryParams()
		req.Query = q.Get("query")
		req.Mode = agent.RunMode(q.Get("mode"))
		req.Explain = queryBool(q.Get("explain"))
		req.Remember = queryBool(q.Get("remember"))
		req.Propose = queryBool(q.Get("propose"))
		if days := q.Get("time_window_days"); days != "" {
			n, err := strconv.Atoi(days)
			if err != nil {
				return nil, agenterrors.InvalidArgument("time_window_days must be an integer")
			}
			req.TimeWindowDays = n
		}
		if filter := q.Get("filter"); filter != "" {
			req.Filters = []string{filter}
		}
	} else {
		if err := json.NewDecoder(c.Request().Body).Decode(req); err != nil {
			return nil, agenterrors.InvalidArgument("malformed request body")
		}
	}
	if req.Mode == "" {
		req.Mode = agent.ModePreviewOnly
	}
	req.UserID = userID(c)
	return req, nil
}

func queryBool(v string) bool {
	return v == "1" || v == "true"
}

// sseWriter serializes event frames onto one response. The orchestrator
// already orders events; the mutex only protects against heartbeat
// interleaving mid-frame. Headers go out with the first frame, so a run
// that dies before emitting anything can still get a plain HTTP error.
type sseWriter struct {
	mu       sync.Mutex
	response *echo.Response
	flusher  http.Flusher
	wrote    bool
}

func newSSEWriter(c echo.Context) (*sseWriter, error) {
	response := c.Response()
	flusher, ok := response.Writer.(http.Flusher)
	if !ok {
		return nil, agenterrors.InvalidArgument("streaming unsupported by transport")
	}
	return &sseWriter{response: response, flusher: flusher}, nil
}

// start commits the SSE headers. Callers hold the mutex.
func (w *sseWriter) start() {
	if w.wrote {
		return
	}
	header := w.response.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.response.WriteHeader(http.StatusOK)
	w.wrote = true
}

// WriteEvent writes one event frame. It is the agent.EventCallback for
// the run; a write failure tells the orchestrator the client is gone.
func (w *sseWriter) WriteEvent(eventType string, eventData any) error {
	data, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.start()
	if _, err := fmt.Fprintf(w.response, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// WriteComment writes a comment frame; clients ignore it.
func (w *sseWriter) WriteComment(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start()
	if _, err := fmt.Fprintf(w.response, ": %s\n\n", text); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WroteAny() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wrote
}
