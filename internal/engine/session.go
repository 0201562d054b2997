package engine

import (
	"sync"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// State is the lifecycle phase of a session.
type State int

const (
	StateUninitialized State = iota
	StateNegotiating
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session holds the negotiated state of the single connection an Engine
// serves.
type Session struct {
	id     string
	userID string

	mu              sync.Mutex
	state           State
	protocolVersion string
	clientInfo      mcp.ImplementationInfo
}

func newSession(id, userID string) *Session {
	return &Session{id: id, userID: userID}
}

func (s *Session) SessionID() string { return s.id }
func (s *Session) UserID() string    { return s.userID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

func (s *Session) ClientInfo() mcp.ImplementationInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// negotiate moves an uninitialized session to Negotiating. It reports false
// when the session was already initialized or closed.
func (s *Session) negotiate(version string, client mcp.ImplementationInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return false
	}
	s.state = StateNegotiating
	s.protocolVersion = version
	s.clientInfo = client
	return true
}

// markReady promotes a negotiating session. It reports whether the state
// changed.
func (s *Session) markReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNegotiating {
		return false
	}
	s.state = StateReady
	return true
}

func (s *Session) close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}
