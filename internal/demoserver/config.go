package demoserver

// Config holds configuration for the demo site.
type Config struct {
	Port int

	// InitialVersion is the version every page starts at.
	InitialVersion int

	// ImageSize is the edge length in pixels of generated images.
	ImageSize int
}

func DefaultConfig() Config {
	return Config{
		Port:           9999,
		InitialVersion: 1,
		ImageSize:      64,
	}
}
