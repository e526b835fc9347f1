package logger

import "context"

// WithConversationID attaches a conversation id to the context for logging.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ContextKeyConversationID, conversationID)
}

// WithLockKey attaches a lock (type,key) descriptor to the context for logging.
func WithLockKey(ctx context.Context, lockKey string) context.Context {
	return context.WithValue(ctx, ContextKeyLockKey, lockKey)
}

// WithOperation attaches an operation name to the context for logging.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}
