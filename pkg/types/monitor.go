package types

// ConfigDocument is the wire shape of the remote measurement configuration.
// Pointer fields distinguish a missing key from a zero value.
type ConfigDocument struct {
	Count     *int             `json:"n" yaml:"n"`
	Uploads   *[]string        `json:"r" yaml:"r"`
	Endpoints *[]EndpointEntry `json:"e" yaml:"e"`
}

// EndpointEntry is one element of the configuration "e" array.
type EndpointEntry struct {
	Kinds      *int    `json:"m" yaml:"m"`
	Weight     *int    `json:"w" yaml:"w"`
	Host       *string `json:"e" yaml:"e"`
	Experiment string  `json:"ex,omitempty" yaml:"ex,omitempty"`
	Object     string  `json:"o,omitempty" yaml:"o,omitempty"`
}
