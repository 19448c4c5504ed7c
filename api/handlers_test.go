package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campbelljlowman/auxparty-api/database"
	"github.com/campbelljlowman/auxparty-api/model"
	"github.com/campbelljlowman/auxparty-api/session"
	"github.com/campbelljlowman/auxparty-api/streaming"
)

func newTestingRouter(t *testing.T, opts Options) (*gin.Engine, *streaming.MockStreamingService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockStreamingService := streaming.NewMockStreamingService()
	s, err := session.NewSession(session.DefaultConfig(), mockStreamingService, mockStreamingService)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.Close()
	})

	return InitializeRoutes(s, opts), mockStreamingService
}

func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeQueueState(t *testing.T, w *httptest.ResponseRecorder) model.QueueState {
	t.Helper()
	var state model.QueueState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	return state
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestingRouter(t, Options{})

	w := doRequest(router, http.MethodGet, "/hc", nil)
	if w.Code != http.StatusOK || w.Body.String() != "API is healthy!" {
		t.Errorf("GET /hc failed! Wanted: %v, got: %v %v", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestGetQueueWhenEmpty(t *testing.T) {
	router, _ := newTestingRouter(t, Options{})

	w := doRequest(router, http.MethodGet, "/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"queue":[],"nowPlaying":null,"isPlaying":false}`, w.Body.String())
}

func TestAddToQueueEndpoint(t *testing.T) {
	router, mockStreamingService := newTestingRouter(t, Options{})

	w := doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "alice", "trackId": "T1"})
	require.Equal(t, http.StatusOK, w.Code)

	state := decodeQueueState(t, w)
	if state.NowPlaying == nil || state.NowPlaying.TrackID != "T1" || !state.IsPlaying {
		t.Errorf("POST /queue failed! Wanted T1 playing, got: %+v", state)
	}
	if calls := mockStreamingService.PlayCalls(); len(calls) != 1 {
		t.Errorf("POST /queue failed! Wanted one play, got: %v", calls)
	}

	w = doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "bob", "trackId": "T1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var conflict map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	if conflict["canForce"] != true || conflict["conflict"] != "nowPlaying" {
		t.Errorf("POST /queue conflict failed! Wanted canForce and nowPlaying, got: %v", conflict)
	}

	w = doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "bob", "trackId": "T1", "force": true})
	require.Equal(t, http.StatusOK, w.Code)
	if queue := decodeQueueState(t, w).Queue; len(queue) != 1 || queue[0].AddedBy != "bob" {
		t.Errorf("POST /queue with force failed! Got: %+v", queue)
	}
}

var addToQueueBadRequestTests = []struct {
	body         any
	expectedCode int
}{
	{gin.H{"trackId": "T1"}, http.StatusBadRequest},
	{gin.H{"addedBy": "alice"}, http.StatusBadRequest},
	{gin.H{"addedBy": " ", "trackId": "T1"}, http.StatusBadRequest},
	{"not an object", http.StatusBadRequest},
	{gin.H{"addedBy": "alice", "trackId": "MISSING"}, http.StatusNotFound},
}

func TestAddToQueueBadRequests(t *testing.T) {
	router, mockStreamingService := newTestingRouter(t, Options{})
	mockStreamingService.MarkMissing("MISSING")

	for _, testCase := range addToQueueBadRequestTests {
		w := doRequest(router, http.MethodPost, "/queue", testCase.body)
		if w.Code != testCase.expectedCode {
			t.Errorf("POST /queue with %v failed! Wanted: %v, got: %v", testCase.body, testCase.expectedCode, w.Code)
		}
	}
}

func TestAddToQueueUpstreamError(t *testing.T) {
	router, mockStreamingService := newTestingRouter(t, Options{})
	mockStreamingService.Fail(streaming.MockGetTrack, errors.New("rate limited"))

	w := doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "alice", "trackId": "T1"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("POST /queue failed! Wanted: %v, got: %v", http.StatusBadGateway, w.Code)
	}
}

func TestQueueEditEndpoints(t *testing.T) {
	router, _ := newTestingRouter(t, Options{})
	for _, trackID := range []string{"T1", "T2", "T3", "T4"} {
		require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "alice", "trackId": trackID}).Code)
	}

	w := doRequest(router, http.MethodPost, "/queue/remove", gin.H{"trackId": "T3"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/queue/reorder", gin.H{"order": []string{"T4", "T2"}})
	require.Equal(t, http.StatusOK, w.Code)

	var ids []string
	for _, entry := range decodeQueueState(t, w).Queue {
		ids = append(ids, entry.TrackID)
	}
	require.Equal(t, []string{"T4", "T2"}, ids)

	w = doRequest(router, http.MethodPost, "/queue/remove", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoteEndpoint(t *testing.T) {
	router, _ := newTestingRouter(t, Options{})
	for _, trackID := range []string{"T1", "T2", "T3"} {
		require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "alice", "trackId": trackID}).Code)
	}

	w := doRequest(router, http.MethodPost, "/vote/promote", gin.H{"voterId": "u1", "trackId": "T3"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"votes":1}`, w.Body.String())

	w = doRequest(router, http.MethodPost, "/vote/promote", gin.H{"voterId": "u2", "trackId": "T3"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"votes":0}`, w.Body.String())

	state := decodeQueueState(t, doRequest(router, http.MethodGet, "/queue", nil))
	if state.Queue[0].TrackID != "T3" {
		t.Errorf("POST /vote/promote failed! Wanted T3 first, got: %v", state.Queue[0].TrackID)
	}

	w = doRequest(router, http.MethodPost, "/vote/upvote", gin.H{"voterId": "u1", "trackId": "T3"})
	if w.Code != http.StatusNotFound {
		t.Errorf("POST /vote/upvote failed! Wanted: %v, got: %v", http.StatusNotFound, w.Code)
	}

	w = doRequest(router, http.MethodPost, "/vote/remove", gin.H{"trackId": "T3"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /vote/remove without voterId failed! Wanted: %v, got: %v", http.StatusBadRequest, w.Code)
	}
}

func TestPlaybackEndpoints(t *testing.T) {
	router, mockStreamingService := newTestingRouter(t, Options{})

	if w := doRequest(router, http.MethodPost, "/pause", nil); w.Code != http.StatusBadRequest {
		t.Errorf("POST /pause while idle failed! Wanted: %v, got: %v", http.StatusBadRequest, w.Code)
	}
	if w := doRequest(router, http.MethodPost, "/previous", nil); w.Code != http.StatusBadRequest {
		t.Errorf("POST /previous without history failed! Wanted: %v, got: %v", http.StatusBadRequest, w.Code)
	}

	for _, trackID := range []string{"T1", "T2"} {
		require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "alice", "trackId": trackID}).Code)
	}

	w := doRequest(router, http.MethodPost, "/play", nil)
	require.Equal(t, http.StatusOK, w.Code)
	if state := decodeQueueState(t, w); state.NowPlaying.TrackID != "T2" {
		t.Errorf("POST /play failed! Wanted T2 playing, got: %v", state.NowPlaying.TrackID)
	}

	w = doRequest(router, http.MethodPost, "/previous", nil)
	require.Equal(t, http.StatusOK, w.Code)
	if state := decodeQueueState(t, w); state.NowPlaying.TrackID != "T1" || state.Queue[0].TrackID != "T2" {
		t.Errorf("POST /previous failed! Wanted T1 playing and T2 next, got: %+v", state)
	}

	w = doRequest(router, http.MethodPost, "/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	if decodeQueueState(t, w).IsPlaying || mockStreamingService.PauseCalls() != 1 {
		t.Errorf("POST /pause failed! Wanted paused")
	}

	var history []model.TrackEntry
	w = doRequest(router, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	if len(history) != 0 {
		t.Errorf("GET /history failed! Wanted empty history after previous, got: %v", history)
	}
}

func TestPlayEndpointReportsDeviceFailure(t *testing.T) {
	router, mockStreamingService := newTestingRouter(t, Options{})
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "alice", "trackId": "T1"}).Code)
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/queue", gin.H{"addedBy": "alice", "trackId": "T2"}).Code)
	mockStreamingService.Fail(streaming.MockPlay, errors.New("no active device"))

	w := doRequest(router, http.MethodPost, "/play", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("POST /play failed! Wanted: %v, got: %v", http.StatusBadGateway, w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, mockStreamingService := newTestingRouter(t, Options{})
	mockStreamingService.AddTrack(model.Track{TrackID: "T1", Title: "Harvest Moon", DurationMs: 300000})
	mockStreamingService.AddTrack(model.Track{TrackID: "T2", Title: "Old Man", DurationMs: 200000})

	w := doRequest(router, http.MethodGet, "/search?q=moon", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tracks []model.Track
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tracks))
	if len(tracks) != 1 || tracks[0].TrackID != "T1" {
		t.Errorf("GET /search failed! Wanted [T1], got: %+v", tracks)
	}

	if w := doRequest(router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("GET /search without q failed! Wanted: %v, got: %v", http.StatusBadRequest, w.Code)
	}
}

type fakePlayHistory struct {
	played    []database.PlayedTrack
	completed []session.Metrics
	limit     int
}

func (f *fakePlayHistory) RecentlyPlayed(ctx context.Context, sessionID string, limit int) ([]database.PlayedTrack, error) {
	f.limit = limit
	return f.played, nil
}

func (f *fakePlayHistory) GetCompletedSessionMetrics(ctx context.Context) ([]session.Metrics, error) {
	return f.completed, nil
}

func TestPlayedTracksEndpoint(t *testing.T) {
	router, _ := newTestingRouter(t, Options{})
	if w := doRequest(router, http.MethodGet, "/history/played", nil); w.Code != http.StatusNotFound {
		t.Errorf("GET /history/played without a play log failed! Wanted: %v, got: %v", http.StatusNotFound, w.Code)
	}

	playHistory := &fakePlayHistory{played: []database.PlayedTrack{{SessionID: "main", TrackID: "T1"}}}
	router, _ = newTestingRouter(t, Options{PlayHistory: playHistory})

	w := doRequest(router, http.MethodGet, "/history/played?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	if playHistory.limit != 5 {
		t.Errorf("GET /history/played failed! Wanted limit: %v, got: %v", 5, playHistory.limit)
	}

	if w := doRequest(router, http.MethodGet, "/history/played?limit=zero", nil); w.Code != http.StatusBadRequest {
		t.Errorf("GET /history/played with a bad limit failed! Wanted: %v, got: %v", http.StatusBadRequest, w.Code)
	}

	w = doRequest(router, http.MethodGet, "/session/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var metrics map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	if _, exists := metrics["active"]; !exists {
		t.Errorf("GET /session/metrics failed! Wanted active metrics, got: %v", metrics)
	}
}
