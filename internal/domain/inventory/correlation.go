package inventory

import "context"

type correlationKey struct{}

// WithCorrelationID tags ctx with the id of the inbound request driving a
// mutation. The engine uses it to notify a backorder once per request.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
