package app

import (
	"strings"

	"golang.org/x/oauth2"

	"github.com/jaemin-s/eventsync/pkg/gateway"
	"github.com/jaemin-s/eventsync/pkg/mutation"
	"github.com/jaemin-s/eventsync/pkg/querycache"
)

// GatewayOptions converts ClientConfig into gateway client options.
// A configured token is sent as a static bearer token.
func (c ClientConfig) GatewayOptions() []gateway.Option {
	opts := []gateway.Option{gateway.WithTimeout(c.Timeout)}
	if token := strings.TrimSpace(c.Token); token != "" {
		opts = append(opts, gateway.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		})))
	}
	return opts
}

// StoreOptions converts ClientConfig into query cache options.
func (c ClientConfig) StoreOptions() []querycache.Option {
	var opts []querycache.Option
	if c.StaleTime > 0 {
		opts = append(opts, querycache.WithStaleTime(c.StaleTime))
	}
	return opts
}

// MutationOptions converts ClientConfig into coordinator options.
func (c ClientConfig) MutationOptions() []mutation.Option {
	return []mutation.Option{mutation.WithAwaitRefetch(c.AwaitRefetch)}
}

// LiveURL derives the change stream URL from BaseURL by swapping the scheme.
func (c ClientConfig) LiveURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/events"
}
