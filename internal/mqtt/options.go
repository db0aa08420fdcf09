package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/strefethen/dunehd-hub-go/internal/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMs   = 1000
	keepAlive             = 60 * time.Second
	maxReconnectInterval  = time.Minute
)

// Options configures the MQTT publisher.
type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// OptionsFromConfig extracts the MQTT settings. Enabled reports false when
// no broker is configured.
func OptionsFromConfig(cfg config.Config) (Options, bool) {
	opts := Options{
		BrokerURL:   cfg.MQTTBrokerURL,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
		QoS:         byte(cfg.MQTTQoS),
	}
	if opts.ClientID == "" {
		opts.ClientID = "dunehd-hub"
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "dunehd"
	}
	return opts, opts.BrokerURL != ""
}

func buildClientOptions(opts Options, topics Topics) *paho.ClientOptions {
	co := paho.NewClientOptions()
	co.AddBroker(opts.BrokerURL)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetMaxReconnectInterval(maxReconnectInterval)
	co.SetConnectTimeout(defaultConnectTimeout)
	co.SetKeepAlive(keepAlive)

	// Broker publishes this if we drop without a clean disconnect.
	co.SetWill(topics.BridgeStatus(), bridgeStatusPayload(opts.ClientID, "offline", "unexpected_disconnect"), 1, true)
	return co
}

func bridgeStatusPayload(clientID, status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339))
}
