package bootstrap

import "context"

type ctxKey struct{}

// WithBootstrapper returns a copy of ctx carrying b.
func WithBootstrapper(ctx context.Context, b *Bootstrapper) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the Bootstrapper installed by WithBootstrapper. It
// panics when there is none: reading auth state outside an initialized
// context is a programming error.
func FromContext(ctx context.Context) *Bootstrapper {
	b, ok := ctx.Value(ctxKey{}).(*Bootstrapper)
	if !ok || b == nil {
		panic("bootstrap: no Bootstrapper in context")
	}
	return b
}
