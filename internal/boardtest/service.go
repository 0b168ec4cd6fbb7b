// Package boardtest provides an in-process board API with a push stream,
// used by the integration-style tests and the simulator binary. It mimics
// the real service's surface, not its persistence.
package boardtest

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Service is a mutable fake board API.
type Service struct {
	secret []byte
	logger *log.Logger
	echo   *echo.Echo
	broker *broker

	mu           sync.Mutex
	statuses     []domain.Status
	tasks        []domain.Task
	workflows    map[string]domain.Workflow
	seenKeys     map[string]struct{}
	moveErr      error
	dropConfirms bool
	moveCount    int
}

// New creates a fake board service validating HS256 bearer tokens signed
// with the given secret. An empty secret disables auth.
func New(secret string, logger *log.Logger) *Service {
	if logger == nil {
		panic("boardtest.New: logger is required")
	}
	s := &Service{
		secret:    []byte(secret),
		logger:    logger,
		broker:    newBroker(),
		workflows: make(map[string]domain.Workflow),
		seenKeys:  make(map[string]struct{}),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/api/boards/:board/tasks", s.getTasks)
	e.GET("/api/boards/:board/statuses", s.getStatuses)
	e.GET("/api/workflows/:id", s.getWorkflow)
	e.PATCH("/api/tasks/:id", s.patchTask)
	e.GET("/stream", s.stream)
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	s.echo = e
	return s
}

// Handler exposes the service as an http.Handler.
func (s *Service) Handler() http.Handler { return s.echo }

// Seed replaces the board fixture.
func (s *Service) Seed(statuses []domain.Status, tasks []domain.Task, workflows []domain.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append([]domain.Status(nil), statuses...)
	s.tasks = append([]domain.Task(nil), tasks...)
	s.workflows = make(map[string]domain.Workflow, len(workflows))
	for _, wf := range workflows {
		s.workflows[wf.ID] = wf
	}
}

// SetMoveError makes subsequent PATCH requests fail.
func (s *Service) SetMoveError(err error) {
	s.mu.Lock()
	s.moveErr = err
	s.mu.Unlock()
}

// DropConfirms applies moves without broadcasting the confirming event,
// simulating a lossy push pipeline.
func (s *Service) DropConfirms(drop bool) {
	s.mu.Lock()
	s.dropConfirms = drop
	s.mu.Unlock()
}

// MoveCount reports how many moves were applied (idempotent replays
// excluded).
func (s *Service) MoveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveCount
}

// Tasks returns the server-side task state.
func (s *Service) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task(nil), s.tasks...)
}

// PublishEvent pushes an arbitrary event to stream subscribers.
func (s *Service) PublishEvent(ev domain.Event) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		s.logger.Errorf("marshal event: %v", err)
		return
	}
	s.broker.publish(data)
}

// PublishRaw pushes raw bytes to stream subscribers, for malformed-payload
// scenarios.
func (s *Service) PublishRaw(data []byte) {
	s.broker.publish(data)
}

// SignToken issues an HS256 token for the given subject, valid for an hour.
func (s *Service) SignToken(sub string) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) authorize(c echo.Context) error {
	if len(s.secret) == 0 {
		return nil
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		if token := c.QueryParam("token"); token != "" {
			header = "Bearer " + token
		}
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return errors.New("bad auth header")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	token, err := parser.Parse(parts[1], func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return errors.New("missing sub")
	}
	return nil
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type statusesResponse struct {
	Statuses []domain.Status `json:"statuses"`
}

func (s *Service) getTasks(c echo.Context) error {
	if err := s.authorize(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	s.mu.Lock()
	resp := tasksResponse{Tasks: append([]domain.Task(nil), s.tasks...)}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, resp)
}

func (s *Service) getStatuses(c echo.Context) error {
	if err := s.authorize(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	s.mu.Lock()
	resp := statusesResponse{Statuses: append([]domain.Status(nil), s.statuses...)}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, resp)
}

func (s *Service) getWorkflow(c echo.Context) error {
	if err := s.authorize(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	s.mu.Lock()
	wf, ok := s.workflows[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		return c.String(http.StatusNotFound, "workflow not found")
	}
	return c.JSON(http.StatusOK, wf)
}

type moveBody struct {
	StatusID       string `json:"statusId"`
	Order          int    `json:"order"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

func (s *Service) patchTask(c echo.Context) error {
	if err := s.authorize(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var body moveBody
	if err := c.Bind(&body); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	s.mu.Lock()
	if s.moveErr != nil {
		err := s.moveErr
		s.mu.Unlock()
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if body.IdempotencyKey != "" {
		if _, dup := s.seenKeys[body.IdempotencyKey]; dup {
			s.mu.Unlock()
			return c.NoContent(http.StatusAccepted)
		}
		s.seenKeys[body.IdempotencyKey] = struct{}{}
	}

	taskID := c.Param("id")
	var updated *domain.Task
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			s.tasks[i].StatusID = body.StatusID
			s.tasks[i].Order = body.Order
			updated = &s.tasks[i]
			break
		}
	}
	if updated == nil {
		s.mu.Unlock()
		return c.String(http.StatusNotFound, "task not found")
	}
	s.moveCount++
	task := *updated
	drop := s.dropConfirms
	s.mu.Unlock()

	if !drop {
		data, err := sonic.Marshal(task)
		if err == nil {
			s.PublishEvent(domain.Event{
				Type:   domain.TaskUpdated,
				TaskID: task.ID,
				Data:   data,
				Time:   time.Now().UnixNano(),
			})
		}
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Service) stream(c echo.Context) error {
	if err := s.authorize(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	ctx := c.Request().Context()
	ch := s.broker.subscribe()
	defer s.broker.unsubscribe(ch)

	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-ch:
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
