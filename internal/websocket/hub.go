package websocket

import (
	"bytes"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"spotalert/internal/models"
	"spotalert/pkg/utils"
)

var hubJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов: broadcast идет на каждое уведомление, аллокации
// на горячем пути не нужны
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет активными WebSocket соединениями админ-панели.
//
// Рассылает операционные события всем подключенным клиентам:
// постановку уведомлений в очередь, сводки циклов матчинга и исходы
// доставки. Медленные клиенты, не успевающие читать, отключаются
// вместо блокировки рассылки.
//
// Использование:
//
//	hub := NewHub()
//	go hub.Run()
//	hub.BroadcastNotification(n)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run запускает главный цикл Hub.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			utils.Debug("WebSocket client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			utils.Debug("WebSocket client disconnected", utils.Int("clients", total))

		case message := <-h.broadcast:
			// Список клиентов копируется под коротким RLock, отправка
			// идет без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Переполненный буфер: клиент не читает
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				utils.Warn("Slow WebSocket clients removed",
					utils.Int("removed", len(toRemove)), utils.Int("clients", total))
			}
		}
	}
}

// Broadcast сериализует сообщение и отправляет всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := hubJSON.NewEncoder(buf).Encode(message); err != nil {
		utils.Error("Failed to marshal broadcast message", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копия обязательна: буфер возвращается в пул
	msg := make([]byte, len(data))
	copy(msg, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msg
}

// BroadcastNotification рассылает событие постановки уведомления
func (h *Hub) BroadcastNotification(n *models.Notification) {
	h.Broadcast(NewNotificationMessage(n))
}

// BroadcastCycleSummary рассылает сводку завершенного цикла матчинга
func (h *Hub) BroadcastCycleSummary(pairsChecked, alertsFired int, durationMS float64) {
	h.Broadcast(NewCycleMessage(pairsChecked, alertsFired, durationMS))
}

// BroadcastDeliveryOutcome рассылает исход попытки доставки
func (h *Hub) BroadcastDeliveryOutcome(notificationID int64, outcome string) {
	h.Broadcast(NewDeliveryMessage(notificationID, outcome))
}

// ClientCount возвращает число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
