package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
	dbtest "github.com/Dhenz14/HivePoA-sub000/validator/db/testing"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	"github.com/Dhenz14/HivePoA-sub000/validator/reputation"
	mock "github.com/Dhenz14/HivePoA-sub000/validator/testing"
	"github.com/gorilla/websocket"
)

func setupService(t *testing.T, ledger hive.Ledger) (*Service, *httptest.Server) {
	db := dbtest.SetupDB(t)
	s := New(context.Background(), &Config{
		DB:               db,
		Ledger:           ledger,
		ValidatorAccount: "validator.one",
	})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return s, srv
}

func dialSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func registerAgent(t *testing.T, conn *websocket.Conn, peerID, username string) *RegisteredFrame {
	require.NoError(t, conn.WriteJSON(&RegisterFrame{
		Type:         TypeRegister,
		PeerID:       peerID,
		HiveUsername: username,
		Version:      "1.2.0",
	}))
	ack := &RegisteredFrame{}
	require.NoError(t, conn.ReadJSON(ack))
	return ack
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.Equal(t, true, ok, "expected a close error, got %v", err)
	require.Equal(t, code, closeErr.Code)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRegister_HappyPath(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("agentone", 1_000_000)
	s, srv := setupService(t, ledger)

	conn := dialSession(t, srv)
	ack := registerAgent(t, conn, "12D3KooWPeer1", "agentone")
	assert.Equal(t, TypeRegistered, ack.Type)
	assert.Equal(t, "validator.one", ack.NodeID)
	require.Equal(t, 1, s.SessionCount())
	require.Equal(t, true, s.HasSession("12D3KooWPeer1"))

	agent, err := s.cfg.DB.Agent(context.Background(), "12D3KooWPeer1")
	require.NoError(t, err)
	assert.Equal(t, "agentone", agent.HiveUsername)
	assert.Equal(t, params.PoAConfig().InitialReputation, agent.Reputation)
	assert.Equal(t, types.AgentActive, agent.Status)
	assert.Equal(t, "1.2.0", agent.Version)

	require.NoError(t, conn.Close())
	waitUntil(t, 5*time.Second, func() bool { return s.SessionCount() == 0 })
}

func TestRegister_KeepsExistingReputation(t *testing.T) {
	s, srv := setupService(t, hive.Disabled())
	existing := &types.Agent{
		ID:           "12D3KooWPeer1",
		HiveUsername: "agentone",
		Reputation:   87,
		Status:       types.AgentActive,
		CreatedAt:    time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, s.cfg.DB.SaveAgent(context.Background(), existing))

	conn := dialSession(t, srv)
	registerAgent(t, conn, "12D3KooWPeer1", "agentone")

	agent, err := s.cfg.DB.Agent(context.Background(), "12D3KooWPeer1")
	require.NoError(t, err)
	assert.Equal(t, int64(87), agent.Reputation)
	assert.Equal(t, "1.2.0", agent.Version)
}

func TestRegister_MissingFields(t *testing.T) {
	_, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	require.NoError(t, conn.WriteJSON(&RegisterFrame{Type: TypeRegister, PeerID: "12D3KooWPeer1"}))
	expectClose(t, conn, CloseMissingFields)
}

func TestRegister_FirstFrameNotRegister(t *testing.T) {
	_, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	require.NoError(t, conn.WriteJSON(&PingPongPongFrame{Type: TypePingPongPong, Hash: "abc"}))
	expectClose(t, conn, CloseMissingFields)
}

func TestRegister_InvalidUsername(t *testing.T) {
	_, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	require.NoError(t, conn.WriteJSON(&RegisterFrame{
		Type:         TypeRegister,
		PeerID:       "12D3KooWPeer1",
		HiveUsername: "Agent_One",
	}))
	expectClose(t, conn, CloseInvalidUsername)
}

func TestRegister_UnknownLedgerAccount(t *testing.T) {
	// Enabled ledger with no accounts registered.
	_, srv := setupService(t, mock.NewMockLedger())
	conn := dialSession(t, srv)
	require.NoError(t, conn.WriteJSON(&RegisterFrame{
		Type:         TypeRegister,
		PeerID:       "12D3KooWPeer1",
		HiveUsername: "ghostagent",
	}))
	expectClose(t, conn, CloseUnknownAccount)
}

func TestRegister_DisabledLedgerSkipsAccountCheck(t *testing.T) {
	s, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	ack := registerAgent(t, conn, "12D3KooWPeer1", "ghostagent")
	assert.Equal(t, TypeRegistered, ack.Type)
	require.Equal(t, 1, s.SessionCount())
}

func TestRegister_Timeout(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.PoAConfig().Copy()
	cfg.RegisterTimeout = 0
	params.OverridePoAConfig(cfg)

	_, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	expectClose(t, conn, CloseRegisterTimeout)
}

func TestRegister_ReplacesPriorSession(t *testing.T) {
	s, srv := setupService(t, hive.Disabled())

	first := dialSession(t, srv)
	registerAgent(t, first, "12D3KooWPeer1", "agentone")
	second := dialSession(t, srv)
	registerAgent(t, second, "12D3KooWPeer1", "agentone")

	expectClose(t, first, CloseReplaced)
	waitUntil(t, 5*time.Second, func() bool { return s.SessionCount() == 1 })
	require.Equal(t, true, s.HasSession("12D3KooWPeer1"))

	// The surviving session still works.
	require.NoError(t, second.WriteJSON(&PingPongPongFrame{Type: TypePingPongPong, Hash: "h1"}))
	echo := &PingPongPongFrame{}
	require.NoError(t, second.ReadJSON(echo))
	assert.Equal(t, "h1", echo.Hash)
}

func TestRegister_MaxSessions(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.PoAConfig().Copy()
	cfg.MaxAgentSessions = 1
	params.OverridePoAConfig(cfg)

	_, srv := setupService(t, hive.Disabled())
	first := dialSession(t, srv)
	registerAgent(t, first, "12D3KooWPeer1", "agentone")

	second := dialSession(t, srv)
	expectClose(t, second, websocket.CloseTryAgainLater)
}

func TestPingPongPong_Echo(t *testing.T) {
	_, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	registerAgent(t, conn, "12D3KooWPeer1", "agentone")

	require.NoError(t, conn.WriteJSON(&PingPongPongFrame{Type: TypePingPongPong, Hash: "deadbeef"}))
	echo := &PingPongPongFrame{}
	require.NoError(t, conn.ReadJSON(echo))
	assert.Equal(t, TypePingPongPong, echo.Type)
	assert.Equal(t, "deadbeef", echo.Hash)
}

func TestDispatch_SessionRoundTrip(t *testing.T) {
	s, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	registerAgent(t, conn, "12D3KooWPeer1", "agentone")

	agent := &types.Agent{ID: "12D3KooWPeer1", HiveUsername: "agentone"}
	frame := NewRequestProof("QmTarget", "a1b2c3salt", "validator.one")
	ch, err := s.Dispatch(context.Background(), agent, frame)
	require.NoError(t, err)
	require.Equal(t, 1, s.PendingCount())

	got := &RequestProofFrame{}
	require.NoError(t, conn.ReadJSON(got))
	assert.Equal(t, TypeRequestProof, got.Type)
	assert.Equal(t, "QmTarget", got.CID)
	assert.Equal(t, "a1b2c3salt", got.Hash)
	assert.Equal(t, "validator.one", got.User)
	assert.Equal(t, StatusPending, got.Status)

	require.NoError(t, conn.WriteJSON(&ProofResponseFrame{
		Type:      TypeProofReply,
		CID:       got.CID,
		Hash:      got.Hash,
		Status:    StatusSuccess,
		ProofHash: "0011aabb",
		Elapsed:   1200,
	}))

	select {
	case res := <-ch:
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, "0011aabb", res.ProofHash)
		assert.Equal(t, types.ReasonNone, res.Failure)
		assert.Equal(t, true, res.Elapsed > 0, "expected a measured elapsed time")
	case <-time.After(5 * time.Second):
		t.Fatal("no resolution received")
	}
	require.Equal(t, 0, s.PendingCount())
}

func TestDispatch_AgentReportedFailure(t *testing.T) {
	s, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	registerAgent(t, conn, "12D3KooWPeer1", "agentone")

	agent := &types.Agent{ID: "12D3KooWPeer1"}
	ch, err := s.Dispatch(context.Background(), agent, NewRequestProof("QmTarget", "salt1", "validator.one"))
	require.NoError(t, err)

	got := &RequestProofFrame{}
	require.NoError(t, conn.ReadJSON(got))
	require.NoError(t, conn.WriteJSON(&ProofResponseFrame{
		Type:   TypeProofReply,
		CID:    got.CID,
		Hash:   got.Hash,
		Status: StatusFail,
		Error:  "block not found locally",
	}))

	res := <-ch
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "block not found locally", res.AgentError)
}

func TestDispatch_NoSessionNoEndpoint(t *testing.T) {
	s, _ := setupService(t, hive.Disabled())
	agent := &types.Agent{ID: "12D3KooWGhost"}
	_, err := s.Dispatch(context.Background(), agent, NewRequestProof("QmTarget", "salt1", "validator.one"))
	require.ErrorIs(t, err, ErrNoEndpoint)
	require.Equal(t, 0, s.PendingCount())
}

func TestDispatch_DisconnectFailsPending(t *testing.T) {
	s, srv := setupService(t, hive.Disabled())
	conn := dialSession(t, srv)
	registerAgent(t, conn, "12D3KooWPeer1", "agentone")

	agent := &types.Agent{ID: "12D3KooWPeer1"}
	ch, err := s.Dispatch(context.Background(), agent, NewRequestProof("QmTarget", "salt1", "validator.one"))
	require.NoError(t, err)

	got := &RequestProofFrame{}
	require.NoError(t, conn.ReadJSON(got))
	require.NoError(t, conn.Close())

	select {
	case res := <-ch:
		assert.Equal(t, types.ReasonAgentDisconnected, res.Failure)
	case <-time.After(5 * time.Second):
		t.Fatal("no resolution received")
	}
}

func newOneShotAgent(t *testing.T, respond func(frame *RequestProofFrame) interface{}) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() {
			_ = conn.Close()
		}()
		got := &RequestProofFrame{}
		require.NoError(t, conn.ReadJSON(got))
		reply := respond(got)
		if reply == nil {
			return
		}
		require.NoError(t, conn.WriteJSON(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatch_OneShotEndpoint(t *testing.T) {
	s, _ := setupService(t, hive.Disabled())
	agentSrv := newOneShotAgent(t, func(frame *RequestProofFrame) interface{} {
		return &ProofResponseFrame{
			Type:      TypeProofReply,
			CID:       frame.CID,
			Hash:      frame.Hash,
			Status:    StatusSuccess,
			ProofHash: "ccdd0011",
		}
	})

	agent := &types.Agent{
		ID:       "12D3KooWRemote",
		Endpoint: "ws" + strings.TrimPrefix(agentSrv.URL, "http"),
	}
	ch, err := s.Dispatch(context.Background(), agent, NewRequestProof("QmTarget", "salt1", "validator.one"))
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, "ccdd0011", res.ProofHash)
		assert.Equal(t, types.ReasonNone, res.Failure)
	case <-time.After(5 * time.Second):
		t.Fatal("no resolution received")
	}
}

func TestDispatch_OneShotUndecodableReply(t *testing.T) {
	s, _ := setupService(t, hive.Disabled())
	agentSrv := newOneShotAgent(t, func(frame *RequestProofFrame) interface{} {
		return &PingPongPongFrame{Type: TypePingPongPong, Hash: "nope"}
	})

	agent := &types.Agent{
		ID:       "12D3KooWRemote",
		Endpoint: "ws" + strings.TrimPrefix(agentSrv.URL, "http"),
	}
	ch, err := s.Dispatch(context.Background(), agent, NewRequestProof("QmTarget", "salt1", "validator.one"))
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.Equal(t, types.ReasonParseError, res.Failure)
	case <-time.After(5 * time.Second):
		t.Fatal("no resolution received")
	}
}

func TestDispatch_OneShotConnectFailed(t *testing.T) {
	s, _ := setupService(t, hive.Disabled())
	agent := &types.Agent{
		ID:       "12D3KooWRemote",
		Endpoint: "ws://127.0.0.1:1",
	}
	ch, err := s.Dispatch(context.Background(), agent, NewRequestProof("QmTarget", "salt1", "validator.one"))
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.Equal(t, types.ReasonConnectFailed, res.Failure)
	case <-time.After(10 * time.Second):
		t.Fatal("no resolution received")
	}
}

func TestBanNotice_KicksLiveSession(t *testing.T) {
	db := dbtest.SetupDB(t)
	policy := reputation.New(&reputation.Config{DB: db, Ledger: hive.Disabled()})
	s := New(context.Background(), &Config{
		DB:               db,
		Ledger:           hive.Disabled(),
		ValidatorAccount: "validator.one",
		Bans:             policy,
	})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	notices := make(chan reputation.BanNotice, 1)
	go s.watchBans(policy.SubscribeBans(notices), notices)

	conn := dialSession(t, srv)
	registerAgent(t, conn, "12D3KooWPeer1", "agentone")

	agent, err := db.Agent(context.Background(), "12D3KooWPeer1")
	require.NoError(t, err)
	for i := uint64(0); i < params.PoAConfig().ConsecutiveFailBanCount; i++ {
		require.NoError(t, policy.ApplyFail(context.Background(), agent, types.ReasonTimeout))
	}

	expectClose(t, conn, websocket.ClosePolicyViolation)
	waitUntil(t, 5*time.Second, func() bool { return s.SessionCount() == 0 })
}

func TestStop_ClosesSessionsGoingAway(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("agentone", 1_000_000)
	s, srv := setupService(t, ledger)
	conn := dialSession(t, srv)
	registerAgent(t, conn, "12D3KooWPeer1", "agentone")

	require.NoError(t, s.Stop())
	expectClose(t, conn, websocket.CloseGoingAway)
}

func TestStatus_GoroutineCeiling(t *testing.T) {
	db := dbtest.SetupDB(t)
	s := New(context.Background(), &Config{
		DB:               db,
		Ledger:           hive.Disabled(),
		ValidatorAccount: "validator.one",
		MaxRoutines:      1,
	})
	require.ErrorContains(t, "too many goroutines", s.Status())

	s.cfg.MaxRoutines = 0
	require.NoError(t, s.Status())
}
