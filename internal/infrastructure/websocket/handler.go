package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type BidPlacer interface {
	PlaceBid(ctx context.Context, lotID, bidderID string, amount decimal.Decimal) (*domain.Bid, error)
}

type LotReader interface {
	Lot(ctx context.Context, lotID string) (*domain.Lot, error)
}

type Authenticator interface {
	Authenticate(token string) (domain.UserHandle, error)
}

// WebSocketHandler serves the live feed of one lot. Anyone may watch; a buyer who
// connects with ?token= may also bid over the socket.
type WebSocketHandler struct {
	bids        BidPlacer
	lots        LotReader
	auth        Authenticator
	clock       domain.Clock
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(bids BidPlacer, lots LotReader, auth Authenticator, clock domain.Clock,
	connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bids:        bids,
		lots:        lots,
		auth:        auth,
		clock:       clock,
		connManager: connManager,
		log:         log,
	}
}

// Router mounts the feed under /ws/lots/{lotID}.
func (h *WebSocketHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/lots/{lotID}", h.HandleConnection).Methods(http.MethodGet)
	return r
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["lotID"]

	lot, err := h.lots.Lot(r.Context(), lotID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "lot not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to load lot", "lot_id", lotID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if lot.Status == domain.LotClosed || lot.Expired(h.clock.Now()) {
		http.Error(w, "auction has already ended", http.StatusForbidden)
		return
	}

	user := domain.UserHandle{ID: utils.GenerateID("guest")}
	if token := r.URL.Query().Get("token"); token != "" {
		user, err = h.auth.Authenticate(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(conn, user.ID, lotID)
	if err := h.connManager.RegisterConnection(user.ID, lotID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		_ = conn.Close()
		return
	}

	_ = wsConn.Send(map[string]interface{}{
		"type":           "snapshot",
		"lot_id":         lot.ID,
		"current_bid":    lot.CurrentHighestBid.String(),
		"current_winner": lot.HighestBidderID,
		"end_time":       lot.EndTime,
	})

	go h.handleMessages(wsConn, user)
}

type clientMessage struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *WebSocketHandler) handleMessages(conn *WebSocketConnection, user domain.UserHandle) {
	defer func() {
		_ = h.connManager.UnregisterConnection(user.ID, conn.LotID(), conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Failed to read message", "lot_id", conn.LotID(), "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.Send(map[string]string{"type": "error", "message": "invalid message"})
			continue
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(conn, user, msg.Amount)
		case "ping":
			_ = conn.Send(map[string]string{"type": "pong"})
		default:
			_ = conn.Send(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(conn *WebSocketConnection, user domain.UserHandle, amount decimal.Decimal) {
	if user.Role != domain.RoleBuyer {
		_ = conn.Send(map[string]string{
			"type": "bid_result", "outcome": "rejected",
			"reason": "only buyers can bid", "code": domain.Code(domain.ErrForbidden),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if _, err := h.bids.PlaceBid(ctx, conn.LotID(), user.ID, amount); err != nil {
		_ = conn.Send(map[string]string{
			"type": "bid_result", "outcome": "rejected",
			"reason": domain.Reason(err), "code": domain.Code(err),
		})
		return
	}

	_ = conn.Send(map[string]string{
		"type": "bid_result", "outcome": "accepted", "amount": amount.String(),
	})
}

type WebSocketConnection struct {
	conn   *websocket.Conn
	userID string
	lotID  string
	mu     sync.Mutex
}

func NewWebSocketConnection(conn *websocket.Conn, userID, lotID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:   conn,
		userID: userID,
		lotID:  lotID,
	}
}

// Send writes message as JSON. Writes are serialized since broadcasts and replies
// come from different goroutines.
func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	_ = wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	return wsc.conn.Close()
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) LotID() string {
	return wsc.lotID
}
