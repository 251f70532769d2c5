package alpaca

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestWithCredentials_DerivedClientsAreIndependent(t *testing.T) {
	base := NewClient("https://api.example.com", "https://data.example.com", testLog())

	alice := base.WithCredentials("alice-key", "alice-secret")
	bob := base.WithCredentials("bob-key", "bob-secret")

	// The parent stays unbound; each derived client carries only its own keys.
	assert.Empty(t, base.apiKey)
	assert.Equal(t, "alice-key", alice.apiKey)
	assert.Equal(t, "bob-key", bob.apiKey)
	assert.Equal(t, "alice-secret", alice.apiSecret)

	// Derived clients share the transport and breaker, not credentials.
	assert.Same(t, base.client, alice.client)
	assert.Same(t, base.breaker, bob.breaker)
}

func TestWithCredentials_RequestsCarryBoundKeys(t *testing.T) {
	var gotKey, gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		gotSecret = r.Header.Get("APCA-API-SECRET-KEY")
		w.Write([]byte(`{"is_open":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL, testLog()).WithCredentials("user-key", "user-secret")
	open, err := client.IsMarketOpen()

	assert.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "user-key", gotKey)
	assert.Equal(t, "user-secret", gotSecret)
}
