package mqtt

import (
	"fmt"
	"sort"
)

// ManagerHandler receives one device manager message with the device
// address already taken from the topic.
type ManagerHandler func(address string, payload []byte) error

// Subscribe registers a handler for messages on the specified topic.
//
// The handler is called in a separate goroutine for each received message.
// Subscriptions are tracked and restored after a reconnect.
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

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscribeManager subscribes to one kind of device manager message for
// every device, e.g. KindDatapoints on "tuya_ble/manager/+/datapoints".
func (c *Client) SubscribeManager(kind string, qos byte, handler ManagerHandler) error {
	if !validKind(kind) {
		return fmt.Errorf("%w: unknown manager message kind %q", ErrSubscribeFailed, kind)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.Subscribe(c.topics.AllManager(kind), qos, c.topics.ManagerMessageHandler(kind, handler))
}

// ManagerMessageHandler adapts handler to the raw topic form. Messages on
// any topic other than {prefix}/manager/{address}/{kind} are rejected.
func (t Topics) ManagerMessageHandler(kind string, handler ManagerHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		address, got, ok := t.ManagerAddress(topic)
		if !ok || got != kind {
			return fmt.Errorf("%w: unexpected %s topic %q", ErrInvalidTopic, kind, topic)
		}
		return handler(address, payload)
	}
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// restoreSubscriptions re-subscribes to all tracked topics after a
// reconnect. Failures are logged; paho retries on the next reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].topic < subs[j].topic })
	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go func(topic string) {
			<-token.Done()
			if err := token.Error(); err != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Warn("mqtt resubscribe failed", "topic", topic, "error", err)
				}
			}
		}(sub.topic)
	}
}
