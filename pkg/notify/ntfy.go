package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultServer is the public ntfy instance.
const DefaultServer = "https://ntfy.sh"

// Ntfy publishes messages to an ntfy topic.
type Ntfy struct {
	Server string
	Topic  string
	Client *http.Client
}

// NewNtfy creates an ntfy notifier. An empty server selects DefaultServer.
func NewNtfy(server, topic string) *Ntfy {
	if server == "" {
		server = DefaultServer
	}
	return &Ntfy{Server: server, Topic: topic, Client: http.DefaultClient}
}

// Endpoint returns the URL messages are POSTed to.
func (n *Ntfy) Endpoint() string {
	return strings.TrimRight(n.Server, "/") + "/" + strings.TrimLeft(n.Topic, "/")
}

// Send POSTs message as the request body.
func (n *Ntfy) Send(ctx context.Context, message string) error {
	if strings.TrimSpace(n.Topic) == "" {
		return ErrNoTarget
	}

	endpoint := n.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", Title)

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
