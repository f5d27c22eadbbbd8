package lifecycle

import "context"

// Client identifies the caller for access log entries.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

// WithClient attaches caller details to ctx.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the caller attached by WithClient, if any.
func ClientFromContext(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}
