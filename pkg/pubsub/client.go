// Package pubsub wraps the Pub/Sub v2 client for the marketplace's two
// directions of traffic: the outbox publisher pushing domain and notification
// events, and the worker pulling payment confirmations.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// Check names a set of resources that must exist before the client is
// handed out. Ping re-runs the same checks.
type Check int

const (
	RequireTopics Check = iota + 1
	RequireSubscriptions
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	client  *pubsub.Client
	project string
	cfg     config.PubSubConfig
	checks  []Check
}

// NewClient dials Pub/Sub and verifies the resources named by checks.
// PUBSUB_EMULATOR_HOST is honoured by the underlying library.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, checks ...Check) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	raw, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: raw, project: project, cfg: cfg, checks: checks}
	if err := c.verify(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": project,
			"topics":     c.topicIDs(),
		}), "pubsub.connected")
	}
	return c, nil
}

func (c *Client) verify(ctx context.Context) error {
	for _, check := range c.checks {
		switch check {
		case RequireTopics:
			for _, id := range c.topicIDs() {
				if err := c.topicExists(ctx, id); err != nil {
					return err
				}
			}
		case RequireSubscriptions:
			for _, id := range c.subscriptionIDs() {
				if err := c.subscriptionExists(ctx, id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Client) topicIDs() []string {
	return nonBlank(c.cfg.DomainTopic, c.cfg.NotificationTopic)
}

func (c *Client) subscriptionIDs() []string {
	return nonBlank(c.cfg.PaymentSubscription)
}

func nonBlank(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c *Client) topicExists(ctx context.Context, id string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: resourceName(c.project, "topics", id),
	})
	return missing("topic", id, err)
}

func (c *Client) subscriptionExists(ctx context.Context, id string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: resourceName(c.project, "subscriptions", id),
	})
	return missing("subscription", id, err)
}

func missing(kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, id)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, id, err)
	}
}

// Subscription accepts an id or a full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(resourceName(c.project, "subscriptions", name))
}

func (c *Client) PaymentSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.PaymentSubscription)
}

// Publisher accepts an id or a full resource name. Callers own the handle
// and must Stop it.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Publisher(resourceName(c.project, "topics", name))
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands an id to projects/<project>/<kind>/<id>. Names already
// qualified for the same kind pass through, including other projects.
func resourceName(project, kind, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	return "projects/" + project + "/" + kind + "/" + n
}
