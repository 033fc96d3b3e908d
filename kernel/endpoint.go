package kernel

// Endpoint identifies a message source or destination core.
type Endpoint uint8

const (
	EPMain Endpoint = iota
	EPCompanion
)

func (e Endpoint) String() string {
	switch e {
	case EPMain:
		return "main"
	case EPCompanion:
		return "companion"
	default:
		return "?"
	}
}
