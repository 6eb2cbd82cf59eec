package streamhub

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_ValidatesOrigin(t *testing.T) {
	hub := NewHub()
	hub.AllowedOrigins = map[string]bool{"http://localhost:8080": true}
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/api/v1/stream", nil)
	req.Header.Set("Origin", "http://evil.example")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

type mockClient struct {
	send chan []byte
}

func (m *mockClient) sendChannel() chan []byte { return m.send }
func (m *mockClient) close()                   {}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	c := &mockClient{send: received}
	hub.register <- c

	time.Sleep(10 * time.Millisecond)

	hub.Broadcast("memory.created", map[string]any{"id": "abc"})

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "memory.created")
		assert.Contains(t, string(msg), "abc")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
	}
}
