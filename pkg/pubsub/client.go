package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errClosed            = errors.New("pubsub client not initialized")
)

// Client wraps a Pub/Sub v2 client and hands out one long-lived publisher per
// topic so batching works across outbox rows.
type Client struct {
	api       *pubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient fails when any configured topic is missing; topics are provisioned
// by infrastructure, never created here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	api, err := pubsub.NewClient(ctx, projectID, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		api:        api,
		projectID:  projectID,
		topics:     topics,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project": projectID,
			"topics":      topics,
			"emulator":    cfg.EmulatorHost != "",
		}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions targets the local emulator, which speaks plaintext gRPC without credentials.
func clientOptions(cfg config.PubSubConfig) []option.ClientOption {
	host := strings.TrimSpace(cfg.EmulatorHost)
	if host == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithEndpoint(host),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, raw := range []string{cfg.ReservationsTopic, cfg.PaymentsTopic} {
		if name := strings.TrimSpace(raw); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Ping confirms every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errClosed
	}
	for _, name := range c.topics {
		req := &pubsubpb.GetTopicRequest{Topic: topicResourceName(c.projectID, name)}
		_, err := c.api.TopicAdminClient.GetTopic(ctx, req)
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist", name)
		case err != nil:
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

// Publisher returns the cached publisher for a short topic ID or a full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.api == nil {
		return nil
	}
	full := topicResourceName(c.projectID, name)
	if full == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[full]
	if !ok {
		pub = c.api.Publisher(full)
		c.publishers[full] = pub
	}
	return pub
}

// Close flushes pending messages on every publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	c.mu.Lock()
	for full, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, full)
	}
	c.mu.Unlock()
	return c.api.Close()
}

func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	projectID = strings.TrimSpace(projectID)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case projectID == "":
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
