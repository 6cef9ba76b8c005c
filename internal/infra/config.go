package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Media backends understood by storage.New.
const (
	MediaBackendNone       = "none"
	MediaBackendFilesystem = "filesystem"
	MediaBackendMinio      = "minio"
	MediaBackendSupabase   = "supabase"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	GenAIBaseURL       string
	GenAIAPIKey        string
	GenAITokenProvider string
	ImageModel         string
	VideoModel         string
	DefaultImageSize   string
	DefaultVideoSize   string
	DefaultVideoSecs   int
	UpstreamTimeout    time.Duration
	PollInterval       time.Duration
	PollTimeout        time.Duration
	DownloadAuthHosts  []string
	SessionTTL         time.Duration
	MaxOwnerSessions   int

	DatabaseURL string

	MediaBackend   string
	StoragePath    string
	StorageBaseURL string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	JWTSecret          string
	DefaultOwnerID     string
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	StaticDir          string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "3001")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		GenAIBaseURL:       strings.TrimRight(getEnv("GENAI_BASE_URL", "https://letssoraprj-resource.openai.azure.com/openai/v1"), "/"),
		GenAIAPIKey:        strings.TrimSpace(os.Getenv("GENAI_API_KEY")),
		GenAITokenProvider: strings.ToLower(getEnv("GENAI_TOKEN_PROVIDER", "static")),
		ImageModel:         getEnv("IMAGE_MODEL", "gpt-image-1"),
		VideoModel:         getEnv("VIDEO_MODEL", "sora-2"),
		DefaultImageSize:   getEnv("DEFAULT_IMAGE_SIZE", "1024x1024"),
		DefaultVideoSize:   getEnv("DEFAULT_VIDEO_SIZE", "720x1280"),
		DefaultVideoSecs:   getEnvInt("DEFAULT_VIDEO_SECONDS", 4),
		UpstreamTimeout:    time.Second * time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 120)),
		PollInterval:       time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)),
		PollTimeout:        time.Second * time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", 600)),
		DownloadAuthHosts:  splitList(os.Getenv("GENAI_DOWNLOAD_AUTH_HOSTS")),
		SessionTTL:         time.Minute * time.Duration(getEnvInt("SESSION_TTL_MINUTES", 30)),
		MaxOwnerSessions:   getEnvInt("MAX_SESSIONS_PER_OWNER", 16),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MediaBackend:       strings.ToLower(getEnv("MEDIA_BACKEND", MediaBackendFilesystem)),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/media"), "/"),
		MinioEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getEnv("MINIO_BUCKET", "media"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		SupabaseURL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseKey:        os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "media"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		DefaultOwnerID:     getEnv("DEFAULT_OWNER_ID", "default"),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		StaticDir:          strings.TrimSpace(os.Getenv("STATIC_DIR")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if cfg.PollTimeout < 0 {
		return nil, fmt.Errorf("POLL_TIMEOUT_SECONDS must not be negative")
	}

	switch cfg.GenAITokenProvider {
	case "static", "store":
	default:
		return nil, fmt.Errorf("unsupported GENAI_TOKEN_PROVIDER %q", cfg.GenAITokenProvider)
	}
	if cfg.GenAITokenProvider == "store" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when GENAI_TOKEN_PROVIDER=store")
	}

	switch cfg.MediaBackend {
	case MediaBackendNone, MediaBackendFilesystem:
	case MediaBackendMinio:
		if cfg.MinioEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required for the minio media backend")
		}
	case MediaBackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase media backend")
		}
	default:
		return nil, fmt.Errorf("unsupported MEDIA_BACKEND %q", cfg.MediaBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
