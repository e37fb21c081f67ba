package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/On-Jun9/ShutterFix/internal/pipeline"
)

// TestHubRun_RegisterBroadcastUnregisterFlow는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHubRun_RegisterBroadcastUnregisterFlow(t *testing.T) {
	// Hub Run 루프는 register/broadcast/unregister 이벤트를 처리해야 한다.
	h := NewHub()
	go h.Run()

	client := &Client{
		hub:  h,
		send: make(chan []byte, 1),
	}

	h.register <- client
	waitForHubClientCount(t, h, 1)

	h.broadcast <- []byte("hello")
	select {
	case msg := <-client.send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected broadcast payload: %s", string(msg))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting broadcast message")
	}

	h.unregister <- client
	waitForHubClientCount(t, h, 0)

	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected client send channel to be closed")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting client channel close")
	}
}

// TestHubRun_RemovesClientWhenSendChannelIsBlocked는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHubRun_RemovesClientWhenSendChannelIsBlocked(t *testing.T) {
	// client.send이 막혀 있으면 default 분기로 클라이언트를 정리해야 한다.
	h := NewHub()
	go h.Run()

	blockedClient := &Client{
		hub:  h,
		send: make(chan []byte), // unbuffered + reader 없음 => broadcast 시 block
	}

	h.register <- blockedClient
	waitForHubClientCount(t, h, 1)

	h.broadcast <- []byte("x")
	waitForHubClientCount(t, h, 0)
}

// TestHandleWebSocket_UpgradeSuccessAndWritePumpDeliversMessage는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleWebSocket_UpgradeSuccessAndWritePumpDeliversMessage(t *testing.T) {
	// 정상 websocket 업그레이드 후 hub broadcast가 클라이언트로 전달되어야 한다.
	s := newTestServer(t).s

	ts := httptest.NewServer(s.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	waitUntil(t, 2*time.Second, func() bool {
		s.hub.mu.RLock()
		defer s.hub.mu.RUnlock()
		return len(s.hub.clients) == 1
	})

	s.hub.broadcast <- []byte(`{"type":"ping"}`)

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read websocket message: %v", err)
	}
	if string(msg) != `{"type":"ping"}` {
		t.Fatalf("unexpected websocket message: %s", string(msg))
	}
}

// waitForHubClientCount는 테스트 코드 동작을 검증하거나 보조합니다.
func waitForHubClientCount(t *testing.T, h *Hub, expected int) {
	t.Helper()
	waitUntil(t, 2*time.Second, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == expected
	})
}

// waitUntil는 테스트 코드 동작을 검증하거나 보조합니다.
func waitUntil(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

// TestHandleWebSocket_InvalidHandshakeStatus는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleWebSocket_InvalidHandshakeStatus(t *testing.T) {
	// websocket 헤더 없이 /api/ws 호출 시 업그레이드 실패 상태를 반환해야 한다.
	s := newTestServer(t).s
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	rr := httptest.NewRecorder()
	s.handleWebSocket(rr, req)

	if rr.Code == http.StatusOK {
		t.Fatalf("expected non-200 for invalid handshake, got %d", rr.Code)
	}
}

// TestHubShutdown_ClosesClientsAndUnblocksBroadcast는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHubShutdown_ClosesClientsAndUnblocksBroadcast(t *testing.T) {
	// Shutdown 이후 클라이언트 채널은 닫히고 Broadcast는 막히지 않아야 한다.
	h := NewHub()
	stopped := make(chan struct{})
	go func() {
		h.Run()
		close(stopped)
	}()

	client := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- client
	waitForHubClientCount(t, h, 1)

	h.Shutdown()
	h.Shutdown()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting hub stop")
	}
	if _, ok := <-client.send; ok {
		t.Fatal("expected client send channel to be closed")
	}

	done := make(chan struct{})
	go func() {
		h.Broadcast([]byte("late"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked after shutdown")
	}
}

// TestBroadcastProgress_ReachesWebSocketClient는 테스트 코드 동작을 검증하거나 보조합니다.
func TestBroadcastProgress_ReachesWebSocketClient(t *testing.T) {
	// 파이프라인 진행 상황은 JSON으로 websocket 클라이언트에 전달되어야 한다.
	ts := newTestServer(t)
	ts.touch(t, "x.jpg", "2020:01:01 10:00:00")

	srv := httptest.NewServer(ts.s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	waitForHubClientCount(t, ts.s.hub, 1)

	ts.seed(t)

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	for {
		var update pipeline.ProgressUpdate
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("failed to read progress update: %v", err)
		}
		if update.Type == pipeline.UpdateComplete {
			if update.Operation != "scan" || update.Summary == nil {
				t.Fatalf("unexpected complete update: %+v", update)
			}
			return
		}
	}
}

// TestHandleWebSocket_ClosesConnectionAfterShutdown는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleWebSocket_ClosesConnectionAfterShutdown(t *testing.T) {
	// hub가 멈춘 뒤 들어온 연결은 등록 대기 없이 바로 닫혀야 한다.
	s := newTestServer(t).s
	s.hub.Shutdown()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected connection to be closed by server")
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Fatalf("expected server close, got read timeout: %v", err)
	}
}
