package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"relaychat/internal/configs"
	"relaychat/internal/handler"
	"relaychat/internal/server"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	os.Exit(m.Run())
}

func newRouter(t *testing.T) *httptest.Server {
	t.Helper()

	hub := server.NewHub()
	cfg := &configs.AppConfig{
		Environment: "development",
		Port:        8080,
		TypingTTL:   2 * time.Second,
	}

	ts := httptest.NewServer(handler.Router(hub, cfg))
	t.Cleanup(ts.Close)

	return ts
}

func TestHealth_ReportsStatusAndClientCount(t *testing.T) {
	req := require.New(t)

	ts := newRouter(t)

	res, err := http.Get(ts.URL + "/health")
	req.NoError(err)
	defer res.Body.Close()
	req.Equal(http.StatusOK, res.StatusCode)

	var body struct {
		Code int `json:"code"`
		Data struct {
			Status  string `json:"status"`
			Clients int    `json:"clients"`
		} `json:"data"`
	}
	req.NoError(json.NewDecoder(res.Body).Decode(&body))
	req.Equal(0, body.Code)
	req.Equal("ok", body.Data.Status)
	req.Equal(0, body.Data.Clients)
}

func TestHealth_RateLimitedPerIP(t *testing.T) {
	req := require.New(t)

	ts := newRouter(t)

	// One request past the burst from the same IP must trip the limiter.
	got429 := false
	for i := 0; i < handler.HealthBurst+1; i++ {
		res, err := http.Get(ts.URL + "/health")
		req.NoError(err)
		res.Body.Close()

		if res.StatusCode == http.StatusTooManyRequests {
			got429 = true
		}
	}
	req.True(got429, "burst+1 health requests never hit the rate limit")
}

func TestWebSocket_MissingUsernameRejected(t *testing.T) {
	req := require.New(t)

	ts := newRouter(t)

	res, err := http.Get(ts.URL + "/ws")
	req.NoError(err)
	defer res.Body.Close()
	req.Equal(http.StatusBadRequest, res.StatusCode)
}
