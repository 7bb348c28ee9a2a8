package workflow

import "context"

type machineKey struct{}

// WithMachine returns a context carrying m.
func WithMachine(ctx context.Context, m *Machine) context.Context {
	return context.WithValue(ctx, machineKey{}, m)
}

// FromContext returns the Machine stored by WithMachine.
func FromContext(ctx context.Context) (*Machine, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(machineKey{}).(*Machine)
	return m, ok && m != nil
}
