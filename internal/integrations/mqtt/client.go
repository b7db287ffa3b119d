// Package mqtt veröffentlicht Authentifizierungsereignisse über MQTT.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"faceauth-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "mqtt",
}

// NewClientFunc erzeugt den Paho-Client; in Tests austauschbar
var NewClientFunc = mqtt.NewClient

// Status-Payloads auf <topic>/status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// AuthEvent beschreibt einen Erkennungs- oder Login-Versuch
type AuthEvent struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Claim    string    `json:"claim,omitempty"`
	Identity string    `json:"identity,omitempty"`
	Accepted bool      `json:"accepted"`
	Score    float64   `json:"score"`
	Variant  string    `json:"variant"`
	Error    string    `json:"error,omitempty"`
}

// Publisher ist der MQTT-Client für ausgehende Ereignisse
type Publisher struct {
	config config.MQTTConfig

	mu     sync.Mutex
	client mqtt.Client
}

// NewPublisher erstellt einen Publisher; verbunden wird erst mit Start
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{config: cfg}
}

// AuthTopic ist das Topic für AuthEvents
func (p *Publisher) AuthTopic() string {
	return p.config.Topic + "/auth"
}

// StatusTopic ist das Topic für den Verfügbarkeitsstatus (retained, Last Will)
func (p *Publisher) StatusTopic() string {
	return p.config.Topic + "/status"
}

// Start verbindet den Client mit dem Broker. Ist MQTT deaktiviert, passiert nichts.
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		log.WithFields(logFields).Info("MQTT ist in der Konfiguration deaktiviert")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetWill(p.StatusTopic(), StatusOffline, 1, true)
	opts.SetOnConnectHandler(p.onConnectHandler)
	opts.SetConnectionLostHandler(p.connectionLostHandler)

	// Automatische Wiederverbindung
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	client := NewClientFunc(opts)

	log.WithFields(logFields).Infof("Verbinde mit MQTT-Broker %s", brokerURL)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// Stop meldet offline und trennt die Verbindung
func (p *Publisher) Stop() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return
	}
	if token := client.Publish(p.StatusTopic(), 1, true, StatusOffline); token.Wait() && token.Error() != nil {
		log.WithFields(logFields).Warnf("Offline-Status konnte nicht gesendet werden: %v", token.Error())
	}
	client.Disconnect(250)
	log.WithFields(logFields).Info("MQTT-Verbindung getrennt")
}

// IsConnected prüft, ob der Client verbunden ist
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// PublishAuthEvent sendet ev als JSON (QoS 0). Ohne aktive Verbindung
// (deaktiviert oder nicht gestartet) ist der Aufruf ein No-op.
func (p *Publisher) PublishAuthEvent(ev AuthEvent) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	if !client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal auth event: %w", err)
	}

	token := client.Publish(p.AuthTopic(), 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.AuthTopic(), token.Error())
	}

	log.WithFields(logFields).Debugf("AuthEvent an %s gesendet", p.AuthTopic())
	return nil
}

func (p *Publisher) onConnectHandler(client mqtt.Client) {
	log.WithFields(logFields).Infof("Mit MQTT-Broker %s:%d verbunden", p.config.Broker, p.config.Port)
	if token := client.Publish(p.StatusTopic(), 1, true, StatusOnline); token.Wait() && token.Error() != nil {
		log.WithFields(logFields).Warnf("Online-Status konnte nicht gesendet werden: %v", token.Error())
	}
}

func (p *Publisher) connectionLostHandler(_ mqtt.Client, err error) {
	log.WithFields(logFields).Errorf("MQTT-Verbindung verloren: %v", err)
}
