package wsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	apperrors "weekend_planner_go_backend/internal/errors"
	"weekend_planner_go_backend/internal/models"
	"weekend_planner_go_backend/internal/services"
	"weekend_planner_go_backend/internal/utils/broker"

	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	TypeRecommend   = "recommend"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeProgress    = "progress"
	TypeResult      = "result"
	TypeError       = "error"
	TypeUsageUpdate = "usage_update"
)

type Recommender interface {
	Recommend(ctx context.Context, req models.RecommendationRequest, userID uint, progress chan<- services.ProgressEvent) (*services.RecommendationResult, error)
}

type Handler struct {
	recommender Recommender
	upgrader    websocket.Upgrader
	broker      *broker.Broker
}

// Message is the envelope for both directions. Content holds a JSON document
// encoded as a string.
type Message struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	RequestID string `json:"requestId,omitempty"`
}

func NewHandler(recommender Recommender, upgrader websocket.Upgrader, messageBroker *broker.Broker) *Handler {
	return &Handler{
		recommender: recommender,
		upgrader:    upgrader,
		broker:      messageBroker,
	}
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msgType, requestID string, payload interface{}) error {
	var content string
	switch v := payload.(type) {
	case string:
		content = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		content = string(b)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(Message{Type: msgType, Content: content, RequestID: requestID})
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User) {
	log := zerolog.Ctx(r.Context())

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	// In-flight runs are cancelled when the read loop exits and finish
	// before the connection is closed.
	var runs sync.WaitGroup
	defer runs.Wait()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	topic := services.UsageTopic(user.ID)
	usageUpdates := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(topic, usageUpdates)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-usageUpdates:
				if !ok {
					return
				}
				if err := c.send(TypeUsageUpdate, "", msg); err != nil {
					log.Debug().Err(err).Msg("Failed to send usage update")
					return
				}
			}
		}
	}()

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Websocket read failed")
			}
			return
		}

		switch msg.Type {
		case TypeRecommend:
			runs.Add(1)
			go func(msg Message) {
				defer runs.Done()
				h.handleRecommend(ctx, c, user, msg)
			}(msg)
		case TypePing:
			_ = c.send(TypePong, msg.RequestID, "")
		default:
			_ = c.send(TypeError, msg.RequestID, apperrors.New400Error("unknown message type "+msg.Type))
		}
	}
}

func (h *Handler) handleRecommend(ctx context.Context, c *conn, user *models.User, msg Message) {
	log := zerolog.Ctx(ctx)

	var req models.RecommendationRequest
	if err := json.Unmarshal([]byte(msg.Content), &req); err != nil {
		_ = c.send(TypeError, msg.RequestID, apperrors.NewValidationError(err))
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		_ = c.send(TypeError, msg.RequestID, apperrors.NewValidationError(err))
		return
	}
	if err := req.Validate(); err != nil {
		_ = c.send(TypeError, msg.RequestID, apperrors.NewValidationError(err))
		return
	}

	progress := make(chan services.ProgressEvent, 16)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range progress {
			if err := c.send(TypeProgress, msg.RequestID, ev); err != nil {
				log.Debug().Err(err).Msg("Failed to send progress")
			}
		}
	}()

	result, err := h.recommender.Recommend(ctx, req, user.ID, progress)
	close(progress)
	<-forwarded

	if err != nil {
		_ = c.send(TypeError, msg.RequestID, apperrors.FromError(err))
		return
	}
	if err := c.send(TypeResult, msg.RequestID, result); err != nil {
		log.Debug().Err(err).Msg("Failed to send result")
	}
}
