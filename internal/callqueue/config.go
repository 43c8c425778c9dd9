package callqueue

// Config holds the service level settings of the waiting queue
type Config struct {
	SLTarget  int // target percentage (e.g., 80)
	SLSeconds int // threshold in seconds (e.g., 20)
}

// DefaultConfig returns the 80/20 service level target
func DefaultConfig() Config {
	return Config{
		SLTarget:  80,
		SLSeconds: 20,
	}
}
