package auth

import "context"

type contextKey string

const clientKey contextKey = "authClient"

// Client is a paired API or stream consumer, such as a remote app.
type Client struct {
	ID   string
	Name string
	Type TokenType
}

// WithClient stores an authenticated client in the context.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext returns the authenticated client, if present.
func ClientFromContext(ctx context.Context) (Client, bool) {
	if ctx == nil {
		return Client{}, false
	}
	client, ok := ctx.Value(clientKey).(Client)
	return client, ok
}
