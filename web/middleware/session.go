package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const loggerKey = "logger"

// LoggerMiddleware makes logger available to handlers through LoggerFrom.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(loggerKey, logger)
		c.Next()
	}
}

// LoggerFrom returns the request logger, or nil when none was injected.
func LoggerFrom(c *gin.Context) *zap.Logger {
	v, ok := c.Get(loggerKey)
	if !ok {
		return nil
	}
	logger, _ := v.(*zap.Logger)
	return logger
}

// SessionLocks serialises requests per session id. Entries are dropped once no request
// holds or waits for them.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[string]*sessionLock)}
}

// Lock blocks until id is free and returns the matching unlock function. An empty id
// is not locked.
func (s *SessionLocks) Lock(id string) (unlock func()) {
	if id == "" {
		return func() {}
	}
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of session ids currently locked or waited on.
func (s *SessionLocks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// SerializeSession holds the lock of the :id route parameter for the whole request.
func SerializeSession(locks *SessionLocks) gin.HandlerFunc {
	return func(c *gin.Context) {
		unlock := locks.Lock(c.Param("id"))
		defer unlock()
		c.Next()
	}
}
