package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pongmatch/engine"
)

// csrfServer mimics the game server: PUTs must echo the token handed out
// with the cookie.
func csrfServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /get-csrf-token", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok-1", Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]string{"csrfToken": "tok-1"})
	})
	mux.HandleFunc("PUT /", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("csrftoken")
		if err != nil || ck.Value != r.Header.Get("X-CSRFToken") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		mu.Lock()
		puts = append(puts, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &puts
}

func TestGameServerClientStart(t *testing.T) {
	srv, puts := csrfServer(t)
	client := NewGameServerClient(srv.URL+"/", time.Second)

	require.NoError(t, client.Start(context.Background(), "g1"))
	assert.Equal(t, []string{"/match/g1", "/match/start/g1"}, *puts)
}

func TestGameServerClientReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	err := NewGameServerClient(srv.URL, time.Second).Create(context.Background(), "g1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestMatchmakerClientReportResult(t *testing.T) {
	var got engine.Result
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/game-result" || r.Header.Get("X-API-Key") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	res := engine.Result{GameID: "g1", LeftScore: 3, RightScore: 1, Status: engine.StatusOver}
	require.NoError(t, NewMatchmakerClient(srv.URL, "s3cret", time.Second).ReportResult(context.Background(), res))
	assert.Equal(t, res, got)

	err := NewMatchmakerClient(srv.URL, "wrong", time.Second).ReportResult(context.Background(), res)
	assert.Error(t, err)
}
