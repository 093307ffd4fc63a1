package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/pavelpernicka/can-sensory/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsHub fans decoded events out to every connected websocket client.
type wsHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func newWSHub() *wsHub {
	return &wsHub{conns: make(map[*websocket.Conn]bool)}
}

func (h *wsHub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *wsHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.Close()
}

// broadcast sends payload to every client, dropping clients whose
// connection errors.
func (h *wsHub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.conns, c)
			c.Close()
		}
	}
}

// RunWeb serves the live dashboard: latest sector state over JSON,
// events over a websocket, static files from ./web.
func RunWeb() error {
	if err := config.InitGlobal("./sensory_config.txt"); err != nil {
		return fmt.Errorf("web: config init failed: %w", err)
	}
	cfg := config.Get()

	var (
		mu        sync.RWMutex
		lastState StateMsg
		haveState bool
	)
	hub := newWSHub()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("web: mqtt connect: %w", token.Error())
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s StateMsg
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("web: state unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastState = s
		haveState = true
		mu.Unlock()
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicState)

	eventToken := client.Subscribe(cfg.TopicEvents, 0, func(_ mqtt.Client, msg mqtt.Message) {
		// Events pass through to websocket clients as-is.
		hub.broadcast(msg.Payload())
	})
	eventToken.Wait()
	if eventToken.Error() != nil {
		return eventToken.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicEvents)

	http.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveState {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastState); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		hub.add(conn)
		// Reads only serve to detect the client going away.
		go func() {
			defer hub.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
