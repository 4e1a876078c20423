package config

// RPC controls the JSON-RPC listener.
type RPC struct {
	// JWTSecretEnv names the environment variable holding the HS256 secret.
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	JWTIssuer          string  `toml:"JWTIssuer"`
	JWTAudience        string  `toml:"JWTAudience"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	MaxBodyBytes       int64   `toml:"MaxBodyBytes"`
	ReadHeaderTimeout  int     `toml:"ReadHeaderTimeout"`
	ReadTimeout        int     `toml:"ReadTimeout"`
	WriteTimeout       int     `toml:"WriteTimeout"`
	IdleTimeout        int     `toml:"IdleTimeout"`
	TrustProxyHeaders  bool    `toml:"TrustProxyHeaders"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// Allocation is an opening balance credited at genesis.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Genesis seeds the module configuration on first start.
type Genesis struct {
	Admin        string       `toml:"Admin"`
	FeeBps       uint32       `toml:"FeeBps"`
	FeeRecipient string       `toml:"FeeRecipient"`
	Denom        string       `toml:"Denom"`
	RequireKYC   bool         `toml:"RequireKYC"`
	MinKYCLevel  uint32       `toml:"MinKYCLevel"`
	Allocations  []Allocation `toml:"Allocations"`
}
