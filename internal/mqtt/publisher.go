package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/strefethen/dunehd-hub-go/internal/driver"
	"github.com/strefethen/dunehd-hub-go/internal/player"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

var ErrConnectTimeout = errors.New("mqtt: connect timed out")

// client is the subset of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Publisher mirrors entity state to retained MQTT topics. It implements
// driver.Listener.
type Publisher struct {
	client   client
	topics   Topics
	clientID string
	qos      byte
	logger   *log.Logger

	mu    sync.Mutex
	state map[string]player.Attributes
}

// Connect dials the broker and returns a publisher. The bridge status topic
// is set to online on every (re)connect.
func Connect(opts Options, logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	topics := Topics{Prefix: opts.TopicPrefix}
	co := buildClientOptions(opts, topics)

	p := newPublisher(nil, topics, opts.ClientID, opts.QoS, logger)
	co.SetOnConnectHandler(func(paho.Client) {
		logger.Printf("MQTT: connected to %s", opts.BrokerURL)
		p.publish(topics.BridgeStatus(), true, bridgeStatusPayload(opts.ClientID, "online", ""))
	})
	co.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Printf("MQTT: connection lost: %v", err)
	})

	c := paho.NewClient(co)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.Disconnect(0)
		return nil, fmt.Errorf("%w after %v", ErrConnectTimeout, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.BrokerURL, err)
	}
	return p, nil
}

func newPublisher(c client, topics Topics, clientID string, qos byte, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		client:   c,
		topics:   topics,
		clientID: clientID,
		qos:      qos,
		logger:   logger,
		state:    make(map[string]player.Attributes),
	}
}

// EntityChanged publishes the merged attribute snapshot and availability.
func (p *Publisher) EntityChanged(change driver.EntityChange) {
	if change.Kind == driver.ChangeRemoved {
		p.mu.Lock()
		delete(p.state, change.EntityID)
		p.mu.Unlock()
		// Empty retained payloads clear the topics on the broker.
		p.publish(p.topics.Attributes(change.EntityID), true, "")
		p.publish(p.topics.Availability(change.EntityID), true, "")
		return
	}

	p.mu.Lock()
	current, ok := p.state[change.EntityID]
	if !ok || change.Kind == driver.ChangeAdded || change.Kind == driver.ChangeConnected {
		current = player.DefaultAttributes()
	}
	current.Merge(change.Attributes)
	p.state[change.EntityID] = current
	snapshot := current.ToMap()
	p.mu.Unlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		p.logger.Printf("MQTT: encode attributes for %s: %v", change.EntityID, err)
		return
	}
	p.publish(p.topics.Attributes(change.EntityID), true, string(payload))

	switch change.Kind {
	case driver.ChangeConnected:
		p.publish(p.topics.Availability(change.EntityID), true, availabilityOnline)
	case driver.ChangeAdded, driver.ChangeDisconnected:
		p.publish(p.topics.Availability(change.EntityID), true, availabilityOffline)
	}
}

func (p *Publisher) HubStateChanged(state driver.HubState) {
	p.publish(p.topics.BridgeState(), true, string(state))
}

// Close publishes the graceful offline status and disconnects.
func (p *Publisher) Close() {
	if p.client == nil {
		return
	}
	if p.client.IsConnected() {
		token := p.client.Publish(p.topics.BridgeStatus(), 1, true,
			bridgeStatusPayload(p.clientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}
	p.client.Disconnect(disconnectQuiesceMs)
	p.logger.Printf("MQTT: disconnected")
}

// publish is fire-and-forget; failures are logged once the token resolves.
func (p *Publisher) publish(topic string, retained bool, payload string) {
	if p.client == nil {
		return
	}
	token := p.client.Publish(topic, p.qos, retained, payload)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			p.logger.Printf("MQTT: publish %s timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Printf("MQTT: publish %s: %v", topic, err)
		}
	}()
}
