package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for a topic pattern. MQTT wildcards work as
// usual: "hearth/core/zone/+/state" for any zone, "hearth/#" for
// everything. The subscription is recorded so it can be replayed after a
// reconnect.
//
// Handlers run on paho's router goroutine; a handler that blocks stalls
// delivery for every other subscription.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Record first so a reconnect racing this call still replays the topic.
	c.subMu.Lock()
	c.subs[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	untrack := func() {
		c.subMu.Lock()
		delete(c.subs, topic)
		c.subMu.Unlock()
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		untrack()
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		untrack()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe drops the subscription for an exact topic pattern. Messages
// already in flight may still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	delete(c.subs, topic)
	c.subMu.Unlock()

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

// HasSubscription reports whether the exact topic string is tracked. No
// wildcard matching is done.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subs[topic]
	return exists
}
