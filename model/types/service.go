package types

// Service is an action service: a named set of typed methods.
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}
