package core

// OperatorCore performs the computation of an operator. OnReceive is invoked
// once per fire to do one quantum of work: read whatever input data is
// available and write results to the outputs.
type OperatorCore interface {
	OnReceive(inputs []Input, outputs []Output) error
}

// Notifiable is implemented by computations that handle scope completion and
// cancellation themselves instead of relying on the default merge behavior.
type Notifiable interface {
	OnNotify(n EndScope, outputs []Output) error
	OnCancel(n CancelScope, inputs []Input) error
}

// NotifiableOperator is a computation that provides both capabilities
type NotifiableOperator interface {
	OperatorCore
	Notifiable
}

// GeneralOperator is the computation handed to an operator builder. It is
// either a plain computation, which gets the default notification behavior
// at build time, or one that already handles notifications.
type GeneralOperator struct {
	simple     OperatorCore
	notifiable NotifiableOperator
}

// Simple wraps a plain computation. Any notification methods it may have are
// ignored in favor of the default merge behavior.
func Simple(op OperatorCore) GeneralOperator {
	return GeneralOperator{simple: op}
}

// WithNotify wraps a computation that handles notifications itself
func WithNotify(op NotifiableOperator) GeneralOperator {
	return GeneralOperator{notifiable: op}
}

// Classify picks the variant from the capabilities op implements
func Classify(op OperatorCore) GeneralOperator {
	if n, ok := op.(NotifiableOperator); ok {
		return WithNotify(n)
	}
	return Simple(op)
}

// IsZero reports whether no computation was supplied
func (g GeneralOperator) IsZero() bool {
	return g.simple == nil && g.notifiable == nil
}

// Notifiable returns the notification-providing computation, if that is the
// variant held
func (g GeneralOperator) Notifiable() (NotifiableOperator, bool) {
	return g.notifiable, g.notifiable != nil
}

// Core returns the plain computation, if that is the variant held
func (g GeneralOperator) Core() (OperatorCore, bool) {
	return g.simple, g.simple != nil
}
