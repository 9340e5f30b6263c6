// Package channel maintains the persistent websocket sessions between the
// validator and its storage agents. It owns agent registration, session
// heartbeats, and the pending-challenge table that pairs every dispatched
// challenge with the response frame that settles it.
package channel

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	"github.com/Dhenz14/HivePoA-sub000/validator/reputation"
	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "channel")

// ErrNoEndpoint is returned by Dispatch when an agent has no live session and
// no registered endpoint to dial.
var ErrNoEndpoint = errors.New("agent has no live session or dialable endpoint")

// Hive account names: lowercase, starting with a letter, 3 to 16 characters.
var usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9.-]{2,15}$`)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poa_agent_sessions",
		Help: "Number of live registered agent sessions.",
	})
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_agent_registrations_total",
		Help: "Total successful agent registrations.",
	})
	rejectedRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poa_agent_registrations_rejected_total",
		Help: "Registrations rejected, by close reason.",
	}, []string{"reason"})
)

// BanSource delivers instant-ban notices. reputation.Policy is the
// production implementation.
type BanSource interface {
	SubscribeBans(ch chan<- reputation.BanNotice) event.Subscription
}

// Config options for the channel service.
type Config struct {
	Host             string
	Port             int
	DB               iface.ValidatorDB
	Ledger           hive.Ledger
	ValidatorAccount string
	// Bans, when set, reports instant bans so the banned agent's live
	// session is closed at once instead of lingering until the next
	// heartbeat.
	Bans BanSource
	// MaxRoutines fails the health check when the process goroutine count
	// exceeds it. Zero disables the check.
	MaxRoutines int
}

// Service accepts agent websocket sessions and moves challenge frames across
// them. It implements http.Handler so the upgrade path can be exercised
// without binding a listener.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	server   *http.Server
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	lock     sync.RWMutex
	sessions map[string]*session
	serveErr error

	pending *pendingTable
}

// New creates a channel service ready to accept agent sessions on Start.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		sessions: make(map[string]*session),
		pending:  newPendingTable(int(params.PoAConfig().MaxPendingChallenges)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  socketBufferSize,
			WriteBufferSize: socketBufferSize,
			// Agents are headless daemons, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: writeTimeout,
			ReadBufferSize:   socketBufferSize,
			WriteBufferSize:  socketBufferSize,
		},
	}
	mux := http.NewServeMux()
	mux.Handle("/", s)
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}
	return s
}

// Start begins listening for agent sessions.
func (s *Service) Start() {
	if s.cfg.Bans != nil {
		notices := make(chan reputation.BanNotice, 1)
		sub := s.cfg.Bans.SubscribeBans(notices)
		go s.watchBans(sub, notices)
	}
	go func() {
		log.WithField("address", s.server.Addr).Info("Listening for agent sessions")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Agent session listener failed")
			s.lock.Lock()
			s.serveErr = err
			s.lock.Unlock()
		}
	}()
}

// watchBans closes the live session of any agent the ban source reports, so
// a banned agent cannot keep holding an open channel. Closing the socket
// drives the usual disconnect path: the read pump unregisters the session
// and fails its pending challenges.
func (s *Service) watchBans(sub event.Subscription, notices <-chan reputation.BanNotice) {
	defer sub.Unsubscribe()
	for {
		select {
		case notice := <-notices:
			sess := s.session(notice.AgentID)
			if sess == nil {
				continue
			}
			log.WithFields(logrus.Fields{
				"agent":    notice.AgentID,
				"username": notice.HiveUsername,
			}).Info("Closing banned agent session")
			sess.close(websocket.ClosePolicyViolation, "agent banned")
		case err := <-sub.Err():
			if err != nil {
				log.WithError(err).Error("Ban subscription failed")
			}
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop closes every live session with a going-away frame and shuts the
// listener down.
func (s *Service) Stop() error {
	s.cancel()
	s.lock.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.lock.Unlock()
	for _, sess := range open {
		sess.close(websocket.CloseGoingAway, "validator shutting down")
	}
	grace := time.Duration(params.PoAConfig().ShutdownGraceSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports an error if the session listener has failed, or if the
// process is holding more goroutines than the configured ceiling. Each agent
// session costs a read pump goroutine, so a leak surfaces here first.
func (s *Service) Status() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.serveErr != nil {
		return s.serveErr
	}
	if s.cfg.MaxRoutines > 0 && runtime.NumGoroutine() > s.cfg.MaxRoutines {
		return errors.Errorf("too many goroutines (%d)", runtime.NumGoroutine())
	}
	return nil
}

// SessionCount returns the number of live registered sessions.
func (s *Service) SessionCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.sessions)
}

// PendingCount returns the number of challenges awaiting a response.
func (s *Service) PendingCount() int {
	return s.pending.size()
}

// HasSession reports whether the given agent holds a live session.
func (s *Service) HasSession(agentID string) bool {
	return s.session(agentID) != nil
}

func (s *Service) session(agentID string) *session {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.sessions[agentID]
}

// ServeHTTP upgrades an incoming connection and runs it through
// registration. The connection only joins the session table once a valid
// register frame has been accepted.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Could not upgrade agent connection")
		return
	}
	cfg := params.PoAConfig()
	if uint64(s.SessionCount()) >= cfg.MaxAgentSessions {
		rejectedRegistrations.WithLabelValues("max_sessions").Inc()
		closeRaw(conn, websocket.CloseTryAgainLater, "validator at session capacity")
		return
	}
	reg, closeCode, reason := s.readRegistration(conn, cfg)
	if closeCode != 0 {
		rejectedRegistrations.WithLabelValues(reason).Inc()
		closeRaw(conn, closeCode, reason)
		return
	}
	agent, err := s.upsertAgent(reg)
	if err != nil {
		log.WithError(err).WithField("agent", reg.PeerID).Error("Could not persist agent registration")
		rejectedRegistrations.WithLabelValues("registration failed").Inc()
		closeRaw(conn, CloseRegistrationFailed, "registration failed")
		return
	}
	sess := newSession(agent.ID, agent.HiveUsername, conn)
	s.register(sess)

	ack := &RegisteredFrame{
		Type:    TypeRegistered,
		NodeID:  s.cfg.ValidatorAccount,
		Message: fmt.Sprintf("registered with validator %s", s.cfg.ValidatorAccount),
	}
	if !sess.enqueue(ack) {
		s.unregister(sess)
		sess.close(CloseRegistrationFailed, "registration failed")
		return
	}
	log.WithFields(logrus.Fields{
		"agent":    agent.ID,
		"username": agent.HiveUsername,
		"version":  agent.Version,
	}).Info("Agent session registered")
	registrationsTotal.Inc()
	sessionsGauge.Set(float64(s.SessionCount()))

	go sess.writeLoop(time.Duration(cfg.HeartbeatInterval) * time.Second)
	s.readLoop(sess)
}

// readRegistration waits for the first frame on a fresh connection and
// validates it. A non-zero close code means the connection must be rejected.
func (s *Service) readRegistration(conn *websocket.Conn, cfg *params.PoAChainConfig) (*RegisterFrame, int, string) {
	conn.SetReadLimit(maxMessageBytes)
	window := time.Duration(cfg.RegisterTimeout) * time.Second
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return nil, CloseRegisterTimeout, "registration timeout"
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, CloseRegisterTimeout, "registration timeout"
	}
	reg := &RegisterFrame{}
	if err := json.Unmarshal(data, reg); err != nil || reg.Type != TypeRegister {
		return nil, CloseMissingFields, "first frame must be register"
	}
	if reg.PeerID == "" || reg.HiveUsername == "" {
		return nil, CloseMissingFields, "register frame missing required fields"
	}
	if !usernamePattern.MatchString(reg.HiveUsername) {
		return nil, CloseInvalidUsername, "invalid account name"
	}
	if s.cfg.Ledger != nil && s.cfg.Ledger.Enabled() {
		account, err := s.cfg.Ledger.GetAccount(s.ctx, reg.HiveUsername)
		if err != nil {
			log.WithError(err).WithField("username", reg.HiveUsername).Error("Could not look up agent account")
			return nil, CloseRegistrationFailed, "registration failed"
		}
		if account == nil {
			return nil, CloseUnknownAccount, "account not found on ledger"
		}
	}
	// Registration accepted. Reads block indefinitely until the heartbeat
	// loop arms a deadline, and pongs clear whatever deadline is armed.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, CloseRegistrationFailed, "registration failed"
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})
	return reg, 0, ""
}

// upsertAgent records the registration, creating a fresh agent record on
// first contact and refreshing username, version, and last-seen otherwise.
func (s *Service) upsertAgent(reg *RegisterFrame) (*types.Agent, error) {
	now := time.Now()
	agent, err := s.cfg.DB.Agent(s.ctx, reg.PeerID)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		agent = &types.Agent{
			ID:           reg.PeerID,
			HiveUsername: reg.HiveUsername,
			Reputation:   params.PoAConfig().InitialReputation,
			Status:       types.AgentActive,
			Version:      reg.Version,
			CreatedAt:    now,
			LastSeen:     now,
		}
	case err != nil:
		return nil, err
	default:
		agent.HiveUsername = reg.HiveUsername
		agent.Version = reg.Version
		agent.LastSeen = now
	}
	if err := s.cfg.DB.SaveAgent(s.ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// register installs a session, displacing any previous session the same
// agent held. Challenges pending against the displaced session stay pending:
// the reconnected agent can still answer them before they time out.
func (s *Service) register(sess *session) {
	s.lock.Lock()
	prior := s.sessions[sess.agentID]
	s.sessions[sess.agentID] = sess
	s.lock.Unlock()
	if prior != nil {
		prior.close(CloseReplaced, "replaced by a newer session")
	}
}

// unregister removes a session from the table if it is still the agent's
// current one, and fails that agent's pending challenges. A session that was
// displaced by a reconnect leaves the table untouched.
func (s *Service) unregister(sess *session) {
	s.lock.Lock()
	current := s.sessions[sess.agentID] == sess
	if current {
		delete(s.sessions, sess.agentID)
	}
	s.lock.Unlock()
	if !current {
		return
	}
	sessionsGauge.Set(float64(s.SessionCount()))
	if dropped := s.pending.dropAgent(sess.agentID); dropped > 0 {
		log.WithFields(logrus.Fields{
			"agent":   sess.agentID,
			"dropped": dropped,
		}).Debug("Failed pending challenges for disconnected agent")
	}
}

// readLoop consumes inbound frames until the connection dies, then retires
// the session.
func (s *Service) readLoop(sess *session) {
	defer func() {
		s.unregister(sess)
		sess.close(websocket.CloseNormalClosure, "")
		log.WithField("agent", sess.agentID).Info("Agent session closed")
	}()
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(sess, data)
	}
}

func (s *Service) handleFrame(sess *session, data []byte) {
	env := &envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		log.WithError(err).WithField("agent", sess.agentID).Debug("Undecodable frame")
		return
	}
	switch env.Type {
	case TypeProofReply:
		frame := &ProofResponseFrame{}
		if err := json.Unmarshal(data, frame); err != nil {
			log.WithError(err).WithField("agent", sess.agentID).Debug("Undecodable proof response")
			return
		}
		if !s.pending.settleResponse(sess.agentID, frame) {
			log.WithFields(logrus.Fields{
				"agent": sess.agentID,
				"cid":   frame.CID,
			}).Debug("Proof response matched no pending challenge")
		}
	case TypeSendCIDs:
		frame := &SendCIDsFrame{}
		if err := json.Unmarshal(data, frame); err != nil {
			log.WithError(err).WithField("agent", sess.agentID).Debug("Undecodable pin inventory")
			return
		}
		s.handleInventory(sess, frame)
	case TypePingPongPong:
		frame := &PingPongPongFrame{}
		if err := json.Unmarshal(data, frame); err != nil {
			return
		}
		sess.enqueue(&PingPongPongFrame{Type: TypePingPongPong, Hash: frame.Hash})
	case TypeRegister:
		log.WithField("agent", sess.agentID).Debug("Ignoring duplicate register frame")
	default:
		log.WithFields(logrus.Fields{
			"agent": sess.agentID,
			"type":  env.Type,
		}).Debug("Ignoring unknown frame type")
	}
}

// handleInventory logs an agent's advertised pin set. Inventories are
// informational: challenge targets come from the blob table, not from what
// agents claim to hold.
func (s *Service) handleInventory(sess *session, frame *SendCIDsFrame) {
	var pins []string
	if err := json.Unmarshal([]byte(frame.Pins), &pins); err != nil {
		log.WithError(err).WithField("agent", sess.agentID).Debug("Undecodable pin list")
		return
	}
	if uint64(len(pins)) > params.PoAConfig().PinsPerPart {
		log.WithFields(logrus.Fields{
			"agent": sess.agentID,
			"pins":  len(pins),
		}).Warn("Pin inventory part exceeds protocol chunk size")
	}
	log.WithFields(logrus.Fields{
		"agent": sess.agentID,
		"pins":  len(pins),
		"part":  fmt.Sprintf("%d/%d", frame.Part, frame.TotalParts),
	}).Debug("Agent advertised pin inventory")
}

// Dispatch sends a challenge to an agent and returns the channel its
// resolution will arrive on. The pending entry is registered before any
// bytes move, so even an instant response finds it. Delivery prefers the
// agent's live session and falls back to a one-shot dial of its registered
// endpoint; with neither available the entry is withdrawn and ErrNoEndpoint
// returned.
func (s *Service) Dispatch(ctx context.Context, agent *types.Agent, frame *RequestProofFrame) (<-chan Resolution, error) {
	deadline := time.Duration(params.PoAConfig().ChallengeTimeout) * time.Second
	ch, err := s.pending.add(agent.ID, frame.CID, frame.Hash, deadline)
	if err != nil {
		return nil, err
	}
	if sess := s.session(agent.ID); sess != nil && sess.enqueue(frame) {
		return ch, nil
	}
	if agent.Endpoint != "" {
		go s.oneShot(agent, frame, deadline)
		return ch, nil
	}
	s.pending.remove(agent.ID, frame.CID, frame.Hash)
	return nil, ErrNoEndpoint
}

// oneShot dials an agent's registered endpoint for a single challenge
// exchange: send the frame, await one reply, close. The pending timer still
// owns the timeout; the read deadline here is padded past it so the timer
// settles first and a read failure always means a transport problem.
func (s *Service) oneShot(agent *types.Agent, frame *RequestProofFrame, deadline time.Duration) {
	ctx, cancel := context.WithTimeout(s.ctx, deadline)
	defer cancel()
	conn, resp, err := s.dialer.DialContext(ctx, agent.Endpoint, nil)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"agent":    agent.ID,
			"endpoint": agent.Endpoint,
		}).Debug("Could not dial agent endpoint")
		s.pending.settleConnectFailed(agent.ID, frame.CID, frame.Hash)
		return
	}
	if resp != nil && resp.Body != nil {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close handshake response body")
		}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).WithField("agent", agent.ID).Debug("Could not close one-shot socket")
		}
	}()
	conn.SetReadLimit(maxMessageBytes)
	data, err := json.Marshal(frame)
	if err != nil {
		log.WithError(err).Error("Could not encode challenge frame")
		s.pending.settleConnectFailed(agent.ID, frame.CID, frame.Hash)
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.pending.settleConnectFailed(agent.ID, frame.CID, frame.Hash)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.WithError(err).WithField("agent", agent.ID).Debug("Could not send one-shot challenge")
		s.pending.settleConnectFailed(agent.ID, frame.CID, frame.Hash)
		return
	}
	if err := conn.SetReadDeadline(time.Now().Add(deadline + 2*time.Second)); err != nil {
		return
	}
	_, reply, err := conn.ReadMessage()
	if err != nil {
		// The timeout timer has already settled the entry if the agent
		// simply never answered; anything else is a dropped connection.
		s.pending.settle(pendingKey{agentID: agent.ID, cid: frame.CID, salt: frame.Hash}, Resolution{
			Failure: types.ReasonAgentDisconnected,
		})
		return
	}
	response := &ProofResponseFrame{}
	if err := json.Unmarshal(reply, response); err != nil || response.Type != TypeProofReply {
		s.pending.settleParseError(agent.ID, frame.CID, frame.Hash)
		return
	}
	if !s.pending.settleResponse(agent.ID, response) {
		s.pending.settleParseError(agent.ID, frame.CID, frame.Hash)
	}
}

// closeRaw writes a close frame and drops a connection that never became a
// session.
func closeRaw(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil && err != websocket.ErrCloseSent {
		log.WithError(err).Debug("Could not write close frame")
	}
	if err := conn.Close(); err != nil {
		log.WithError(err).Debug("Could not close rejected connection")
	}
}
