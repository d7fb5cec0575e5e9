package server

// CORSConfig controls the Access-Control-* headers the server answers
// with, mirroring the teacher-absent-but-pack-standard permissive local
// dev defaults from original_source's ServerConfig.
type CORSConfig struct {
	Enabled        bool
	AllowOrigins   []string
	AllowMethods   []string
	AllowHeaders   []string
	AllowCredentials bool
}

// DefaultCORSConfig allows the usual local dev origins (a browser-based
// client talking to a locally-running amcpd) without requiring
// configuration for the common case.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:          true,
		AllowOrigins:     []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowMethods:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}
}

// Config bounds the HTTP server's own behavior; session-lifecycle policy
// lives in sessionmgr.Config instead.
type Config struct {
	Host string
	Port int
	CORS CORSConfig
}

// DefaultConfig matches the teacher-absent reference server's own
// defaults: loopback-only on the well-known amcp port.
func DefaultConfig() Config {
	return Config{
		Host: "127.0.0.1",
		Port: 4096,
		CORS: DefaultCORSConfig(),
	}
}
