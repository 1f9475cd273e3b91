package usecase

import "context"

type clientMetaKey struct{}

// ClientMeta carries caller metadata recorded alongside audit entries. The
// transport layer injects it; the core treats it as opaque.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// WithClientMeta attaches client metadata to the context.
func WithClientMeta(ctx context.Context, meta ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey{}, meta)
}

// ClientMetaFromContext extracts client metadata, if present.
func ClientMetaFromContext(ctx context.Context) ClientMeta {
	if ctx == nil {
		return ClientMeta{}
	}
	if meta, ok := ctx.Value(clientMetaKey{}).(ClientMeta); ok {
		return meta
	}
	return ClientMeta{}
}
