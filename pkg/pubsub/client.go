package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

// Client publishes payment and commission events. Publisher handles have
// message ordering enabled so the events of one payment arrive in the order
// they were written to the outbox.
type Client struct {
	gcp     *pubsub.Client
	project string
	topics  []string

	mu      sync.Mutex
	handles map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails unless both event topics exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics, err := eventTopics(project, cfg)
	if err != nil {
		return nil, err
	}

	conn, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{gcp: conn, project: project, topics: topics, handles: map[string]*pubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client initialized")
	}
	return c, nil
}

// topicPath qualifies a short topic id with the project; full resource names
// pass through untouched.
func topicPath(project, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	if project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + name
}

func eventTopics(project string, cfg config.PubSubConfig) ([]string, error) {
	payments := topicPath(project, cfg.PaymentsTopic)
	if payments == "" {
		return nil, errors.New("payments topic is required")
	}
	commissions := topicPath(project, cfg.CommissionsTopic)
	if commissions == "" {
		return nil, errors.New("commissions topic is required")
	}
	if payments == commissions {
		return []string{payments}, nil
	}
	return []string{payments, commissions}, nil
}

// Publisher returns the ordered publisher for topic. Handles batch internally,
// so one per topic is kept for the life of the client.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.gcp == nil {
		return nil
	}
	path := topicPath(c.project, topic)
	if path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if handle, ok := c.handles[path]; ok {
		return handle
	}
	handle := c.gcp.Publisher(path)
	handle.EnableMessageOrdering = true
	c.handles[path] = handle
	return handle
}

// Ping checks that every event topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.gcp == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, path := range c.topics {
		_, err := c.gcp.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: path})
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %s does not exist", path)
		}
		if err != nil {
			return fmt.Errorf("get topic %s: %w", path, err)
		}
	}
	return nil
}

// Close flushes pending messages on every handle before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.gcp == nil {
		return nil
	}
	c.mu.Lock()
	for _, handle := range c.handles {
		handle.Stop()
	}
	c.handles = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.gcp.Close()
}
