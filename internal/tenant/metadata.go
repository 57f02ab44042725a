package tenant

import "context"

// RequestMetadata describes the client of a request for audit purposes.
// Empty fields mean unknown.
type RequestMetadata struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type metadataContextKey struct{}

// WithRequestMetadata attaches client metadata to ctx.
func WithRequestMetadata(ctx context.Context, md RequestMetadata) context.Context {
	return context.WithValue(ctx, metadataContextKey{}, md)
}

// RequestMetadataFrom returns the metadata attached to ctx, or the zero value.
func RequestMetadataFrom(ctx context.Context) RequestMetadata {
	if ctx == nil {
		return RequestMetadata{}
	}
	md, _ := ctx.Value(metadataContextKey{}).(RequestMetadata)
	return md
}
