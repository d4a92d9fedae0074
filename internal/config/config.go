package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the runtime configuration, read from the environment.
// main loads .env first so local runs can keep secrets out of the shell.
type Config struct {
	Port    string
	TempDir string

	JobTimeout        time.Duration
	MaxConcurrentJobs int
	ShutdownTimeout   time.Duration

	// MockProviders swaps every external provider for a canned fake.
	MockProviders bool

	Retry         RetryConfig
	Transcription TranscriptionConfig
	Notes         NotesConfig
	Narration     NarrationConfig
	Storage       StorageConfig
	Records       RecordsConfig
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type TranscriptionConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Language      string
	MaxChunkBytes int64
	ChunkPause    time.Duration
	ChunkMode     string // "duration" or "bytes"
	FFmpegPath    string
	FFprobePath   string
	RatePerSecond float64
}

type NotesConfig struct {
	BaseURL           string
	APIKey            string
	DefaultModel      string
	LargeModel        string
	LargeSegmentChars int
	Temperature       float64
	MaxTokens         int
	MaxConcurrency    int
	RatePerSecond     float64
}

type NarrationConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
}

type StorageConfig struct {
	Backend       string // "local" or "r2"
	Dir           string
	R2AccountID   string
	R2Endpoint    string
	R2AccessKeyID string
	R2SecretKey   string
	R2Bucket      string
}

type RecordsConfig struct {
	Backend       string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Load reads the configuration and validates numeric and duration values.
func Load() (Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.Port = envOr("PORT", "8080")
	cfg.TempDir = envOr("TEMP_DIR", os.TempDir())
	if cfg.JobTimeout, err = durationEnv("JOB_TIMEOUT", 60*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentJobs, err = intEnv("MAX_CONCURRENT_JOBS", 4); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	cfg.MockProviders = os.Getenv("USE_MOCK_PROVIDERS") == "true"

	r := &cfg.Retry
	if r.MaxAttempts, err = intEnv("RETRY_MAX_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	if r.BaseDelay, err = durationEnv("RETRY_BASE_DELAY", 2*time.Second); err != nil {
		return Config{}, err
	}
	if r.MaxDelay, err = durationEnv("RETRY_MAX_DELAY", 30*time.Second); err != nil {
		return Config{}, err
	}

	tr := &cfg.Transcription
	tr.BaseURL = envOr("TRANSCRIBE_BASE_URL", "https://api.groq.com/openai/v1")
	tr.APIKey = os.Getenv("GROQ_API_KEY")
	tr.Model = envOr("TRANSCRIBE_MODEL", "whisper-large-v3-turbo")
	tr.Language = envOr("TRANSCRIBE_LANGUAGE", "en")
	tr.ChunkMode = envOr("CHUNK_MODE", "duration")
	tr.FFmpegPath = envOr("FFMPEG_PATH", "ffmpeg")
	tr.FFprobePath = envOr("FFPROBE_PATH", "ffprobe")
	maxChunkMB, err := intEnv("TRANSCRIBE_MAX_CHUNK_MB", 19)
	if err != nil {
		return Config{}, err
	}
	tr.MaxChunkBytes = int64(maxChunkMB) * 1024 * 1024
	if tr.ChunkPause, err = durationEnv("TRANSCRIBE_CHUNK_PAUSE", time.Second); err != nil {
		return Config{}, err
	}
	if tr.RatePerSecond, err = floatEnv("TRANSCRIBE_REQUESTS_PER_SECOND", 0); err != nil {
		return Config{}, err
	}

	n := &cfg.Notes
	n.BaseURL = envOr("LLM_BASE_URL", "https://api.mistral.ai/v1")
	n.APIKey = os.Getenv("MISTRAL_API_KEY")
	n.DefaultModel = envOr("LLM_MODEL_DEFAULT", "mistral-medium-2508")
	n.LargeModel = envOr("LLM_MODEL_LARGE", "mistral-large-latest")
	if n.LargeSegmentChars, err = intEnv("LLM_LARGE_SEGMENT_CHARS", 40000); err != nil {
		return Config{}, err
	}
	if n.Temperature, err = floatEnv("LLM_TEMPERATURE", 0.3); err != nil {
		return Config{}, err
	}
	if n.MaxTokens, err = intEnv("LLM_MAX_TOKENS", 0); err != nil {
		return Config{}, err
	}
	if n.MaxConcurrency, err = intEnv("NOTES_MAX_CONCURRENCY", 0); err != nil {
		return Config{}, err
	}
	if n.RatePerSecond, err = floatEnv("LLM_REQUESTS_PER_SECOND", 0); err != nil {
		return Config{}, err
	}

	cfg.Narration = NarrationConfig{
		BaseURL: envOr("TTS_BASE_URL", "https://api.lemonfox.ai/v1"),
		APIKey:  os.Getenv("LEMONFOX_API_KEY"),
		Model:   envOr("TTS_MODEL", "tts-1"),
		Voice:   envOr("TTS_VOICE", "michael"),
	}

	cfg.Storage = StorageConfig{
		Backend:       envOr("STORAGE_BACKEND", "local"),
		Dir:           envOr("STORAGE_DIR", "data/blobs"),
		R2AccountID:   os.Getenv("R2_ACCOUNT_ID"),
		R2Endpoint:    os.Getenv("R2_ENDPOINT"),
		R2AccessKeyID: os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretKey:   os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:      os.Getenv("R2_BUCKET_NAME"),
	}

	rc := &cfg.Records
	rc.Backend = envOr("RECORDS_BACKEND", "memory")
	rc.RedisAddr = envOr("REDIS_ADDR", "localhost:6379")
	rc.RedisPassword = os.Getenv("REDIS_PASSWORD")
	rc.RedisPrefix = envOr("REDIS_PREFIX", "lectura")
	if rc.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Transcription.MaxChunkBytes <= 0 {
		return fmt.Errorf("TRANSCRIBE_MAX_CHUNK_MB must be positive")
	}
	switch c.Transcription.ChunkMode {
	case "duration", "bytes":
	default:
		return fmt.Errorf("CHUNK_MODE must be duration or bytes, got %q", c.Transcription.ChunkMode)
	}
	switch c.Storage.Backend {
	case "local", "r2":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or r2, got %q", c.Storage.Backend)
	}
	switch c.Records.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("RECORDS_BACKEND must be memory or redis, got %q", c.Records.Backend)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", k, err)
	}
	return n, nil
}

func floatEnv(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", k, err)
	}
	return f, nil
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", k, err)
	}
	return d, nil
}
