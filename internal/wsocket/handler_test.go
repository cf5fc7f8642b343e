package wsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"weekend_planner_go_backend/internal/models"
	"weekend_planner_go_backend/internal/services"
	"weekend_planner_go_backend/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubRecommender struct {
	err error
}

func (s stubRecommender) Recommend(ctx context.Context, req models.RecommendationRequest, userID uint, progress chan<- services.ProgressEvent) (*services.RecommendationResult, error) {
	progress <- services.ProgressEvent{Stage: services.StageStart}
	if s.err != nil {
		return nil, s.err
	}
	return &services.RecommendationResult{
		Recommendations: &models.Recommendations{SearchSummary: "ok for " + req.City},
		Metadata:        &models.UsageMetadata{Model: "stub"},
		AccessCount:     1,
	}, nil
}

func dial(t *testing.T, rec Recommender, b *broker.Broker, user *models.User) *websocket.Conn {
	h := NewHandler(rec, websocket.Upgrader{}, b)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleWebSocket(w, r, user)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	return ws
}

const requestJSON = `{"city":"Kraków","dateRangeStart":"2025-11-01","dateRangeEnd":"2025-11-02","attendees":[{"age":5,"role":"child"}]}`

func TestRecommendOverWebsocket(t *testing.T) {
	ws := dial(t, stubRecommender{}, broker.NewBroker(), &models.User{Model: modelWithID(42)})

	require.NoError(t, ws.WriteJSON(Message{Type: TypeRecommend, Content: requestJSON, RequestID: "r1"}))

	var progress, result Message
	require.NoError(t, ws.ReadJSON(&progress))
	assert.Equal(t, TypeProgress, progress.Type)
	assert.Equal(t, "r1", progress.RequestID)

	require.NoError(t, ws.ReadJSON(&result))
	assert.Equal(t, TypeResult, result.Type)
	var payload services.RecommendationResult
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, "ok for Kraków", payload.Recommendations.SearchSummary)
}

func TestRecommendErrorOverWebsocket(t *testing.T) {
	ws := dial(t, stubRecommender{err: services.ErrAgentLoopExceeded}, broker.NewBroker(), &models.User{Model: modelWithID(1)})

	require.NoError(t, ws.WriteJSON(Message{Type: TypeRecommend, Content: requestJSON}))

	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "AGENT_FAILED")
}

func TestInvalidRequestOverWebsocket(t *testing.T) {
	ws := dial(t, stubRecommender{}, broker.NewBroker(), &models.User{Model: modelWithID(1)})

	require.NoError(t, ws.WriteJSON(Message{Type: TypeRecommend, Content: `{"city":""}`}))

	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "BAD_REQUEST")
}

func TestUsageUpdatesAreForwarded(t *testing.T) {
	b := broker.NewBroker()
	ws := dial(t, stubRecommender{}, b, &models.User{Model: modelWithID(42)})

	// A ping round trip guarantees the subscription is in place.
	require.NoError(t, ws.WriteJSON(Message{Type: TypePing}))
	var pong Message
	require.NoError(t, ws.ReadJSON(&pong))
	require.Equal(t, TypePong, pong.Type)

	b.Publish(services.UsageTopic(42), &models.UsageMetadata{Model: "stub", InputTokens: 10})
	b.Publish(services.UsageTopic(7), &models.UsageMetadata{Model: "other"})

	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, TypeUsageUpdate, msg.Type)
	assert.Contains(t, msg.Content, `"inputTokens":10`)
}

func modelWithID(id uint) gorm.Model {
	return gorm.Model{ID: id}
}
