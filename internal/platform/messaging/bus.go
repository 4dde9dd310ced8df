package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"pollhub/contexts/member-engagement/poll-engine/ports"
)

const subscriberBuffer = 128

// Bus fans outbox events out to consumer groups. Every group sees each event
// once; members of one group take turns, the way partitions are shared by a
// Kafka consumer group. Delivery stays in-process; the broker list names the
// cluster the relay is configured for and is reported in logs.
type Bus struct {
	mu      sync.RWMutex
	brokers []string
	topics  map[string]map[string]*consumerGroup
	logger  *slog.Logger
}

type consumerGroup struct {
	members []chan ports.EventEnvelope
	next    int
}

// NewBus validates brokers as host:port pairs.
func NewBus(brokers []string, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]struct{}, len(brokers))
	cleaned := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(broker); err != nil {
			return nil, fmt.Errorf("invalid broker address %q: %w", broker, err)
		}
		if _, dup := seen[broker]; dup {
			continue
		}
		seen[broker] = struct{}{}
		cleaned = append(cleaned, broker)
	}

	logger.Info("event bus configured",
		"event", "event_bus_configured",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"brokers", strings.Join(cleaned, ","),
	)
	return &Bus{
		brokers: cleaned,
		topics:  make(map[string]map[string]*consumerGroup),
		logger:  logger,
	}, nil
}

func (b *Bus) Brokers() []string {
	return append([]string(nil), b.brokers...)
}

// Publish picks one member of every group subscribed to topic. A member whose
// buffer is full loses the event.
func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	targets := b.pickTargets(topic)
	delivered := 0
	for group, target := range targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case target <- event:
			delivered++
		default:
			b.logger.Warn("consumer buffer full, event dropped",
				"event", "event_bus_publish_dropped",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", group,
				"event_id", event.EventID,
			)
		}
	}

	b.logger.Debug("event published",
		"event", "event_bus_published",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"groups", delivered,
	)
	return nil
}

func (b *Bus) pickTargets(topic string) map[string]chan ports.EventEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups := b.topics[topic]
	targets := make(map[string]chan ports.EventEnvelope, len(groups))
	for name, group := range groups {
		if len(group.members) == 0 {
			continue
		}
		targets[name] = group.members[group.next%len(group.members)]
		group.next++
	}
	return targets
}

// Subscribe joins consumerGroup on topic and runs handler for every event the
// member receives until ctx is done. Handler errors are logged; the event is
// not redelivered.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	topic = strings.TrimSpace(topic)
	consumerGroup = strings.TrimSpace(consumerGroup)
	if topic == "" || consumerGroup == "" {
		return errors.New("topic and consumer group are required")
	}
	member := make(chan ports.EventEnvelope, subscriberBuffer)
	b.join(topic, consumerGroup, member)

	go func() {
		defer b.leave(topic, consumerGroup, member)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-member:
				if err := handler(ctx, event); err != nil {
					b.logger.Error("event handler failed",
						"event", "event_bus_handler_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (b *Bus) join(topic, name string, member chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups, ok := b.topics[topic]
	if !ok {
		groups = make(map[string]*consumerGroup)
		b.topics[topic] = groups
	}
	group, ok := groups[name]
	if !ok {
		group = &consumerGroup{}
		groups[name] = group
	}
	group.members = append(group.members, member)
}

func (b *Bus) leave(topic, name string, member chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	group := b.topics[topic][name]
	if group == nil {
		return
	}
	for i, candidate := range group.members {
		if candidate == member {
			group.members = append(group.members[:i], group.members[i+1:]...)
			break
		}
	}
	if len(group.members) > 0 {
		return
	}
	delete(b.topics[topic], name)
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}

var _ ports.EventPublisher = (*Bus)(nil)
