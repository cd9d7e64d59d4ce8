// Package oracle produces reply text for a submitted message.
package oracle

import "context"

// Oracle maps one input to one reply. Calls are independent of each other.
type Oracle interface {
	Reply(ctx context.Context, input string) (string, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, input string) (string, error)

func (f Func) Reply(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}
