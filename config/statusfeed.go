package config

import "fmt"

// StatusFeedConfig holds configuration for the MQTT EVSE status feed.
type StatusFeedConfig struct {
	Enabled         bool   `json:"enabled"`
	Mode            string `json:"mode"`
	TopicPrefix     string `json:"topic_prefix"`
	PollTopic       string `json:"poll_topic"`
	ResponsePrefix  string `json:"response_topic_prefix"`
	IntervalSeconds int    `json:"interval_seconds"`
	QoS             byte   `json:"qos"`
}

// SetDefaults fills the topics and the polling mode.
func (c *StatusFeedConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "push"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "roaming/status"
	}
	if c.PollTopic == "" {
		c.PollTopic = "roaming/poll"
	}
	if c.ResponsePrefix == "" {
		c.ResponsePrefix = "roaming/poll/response"
	}
}

// Validate checks the mode and the QoS level.
func (c StatusFeedConfig) Validate() error {
	switch c.Mode {
	case "", "push", "pull", "hybrid":
	default:
		return fmt.Errorf("status_feed: unknown mode %q", c.Mode)
	}
	if c.QoS > 2 {
		return fmt.Errorf("status_feed: invalid qos %d", c.QoS)
	}
	return nil
}

// Interval returns the polling period in seconds.
func (c StatusFeedConfig) Interval() int {
	if c.IntervalSeconds <= 0 {
		return 30
	}
	return c.IntervalSeconds
}
