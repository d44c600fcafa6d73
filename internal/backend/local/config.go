package local

// Config holds all information needed to open a local backend.
type Config struct {
	Path string

	// Connections limits the number of concurrent file operations.
	Connections uint
}

// NewConfig returns a new config with default options applied.
func NewConfig(path string) Config {
	return Config{
		Path:        path,
		Connections: 2,
	}
}
