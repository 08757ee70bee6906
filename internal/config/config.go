package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DataDir       string
	OutputDir     string

	SupabaseURL        string
	SupabaseServiceKey string
	CheckpointBucket   string

	LLMProvider     string
	AnthropicAPIKey string
	GeminiAPIKey    string
	DefaultLLMModel string
	LLMMaxTokens    int

	PriceInputPerMTok  float64
	PriceOutputPerMTok float64

	Batch Batch

	Renderer          string
	Headless          bool
	PageTimeout       time.Duration
	RenderCacheTTL    time.Duration
	SourcesFile       string
	ScheduleFile      string
	TaskMaxRetries    int
	MaxParseFallbacks int
	WebhookSecret     string
}

// Batch holds the run-level knobs consumed by the batch engine.
type Batch struct {
	Size               int
	CostCeiling        float64
	CheckpointInterval int
	InterItemDelay     time.Duration
	ExhaustionMarkers  []string
}

// DefaultExhaustionMarkers are substrings of scoring errors that signal the
// metered service will not accept further calls (quota, billing or auth).
var DefaultExhaustionMarkers = []string{"credit", "billing", "quota", "401", "403"}

// DefaultBatch mirrors the defaults of the batch run surface.
func DefaultBatch() Batch {
	return Batch{
		Size:               5,
		CostCeiling:        10.0,
		CheckpointInterval: 10,
		InterItemDelay:     time.Second,
		ExhaustionMarkers:  append([]string(nil), DefaultExhaustionMarkers...),
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvList splits a comma separated value, dropping blanks.
func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func Load() Config {
	dataDir := getenv("DATA_DIR", "./data")
	batch := DefaultBatch()

	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DataDir:       dataDir,
		OutputDir:     getenv("OUTPUT_DIR", filepath.Join(dataDir, "results")),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		CheckpointBucket:   getenv("SUPABASE_CHECKPOINT_BUCKET", "checkpoints"),

		LLMProvider:     getenv("LLM_PROVIDER", "anthropic"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "claude-3-5-sonnet-20241022"),
		LLMMaxTokens:    getenvInt("LLM_MAX_TOKENS", 1024),

		PriceInputPerMTok:  getenvFloat("PRICE_INPUT_PER_MTOK", 3.0),
		PriceOutputPerMTok: getenvFloat("PRICE_OUTPUT_PER_MTOK", 15.0),

		Batch: Batch{
			Size:               getenvInt("BATCH_SIZE", batch.Size),
			CostCeiling:        getenvFloat("COST_CEILING", batch.CostCeiling),
			CheckpointInterval: getenvInt("CHECKPOINT_INTERVAL", batch.CheckpointInterval),
			InterItemDelay:     time.Duration(getenvInt("INTER_ITEM_DELAY_MS", int(batch.InterItemDelay/time.Millisecond))) * time.Millisecond,
			ExhaustionMarkers:  getenvList("EXHAUSTION_MARKERS", batch.ExhaustionMarkers),
		},

		Renderer:          getenv("RENDERER", "playwright"),
		Headless:          getenvBool("HEADLESS", true),
		PageTimeout:       time.Duration(getenvInt("PAGE_TIMEOUT_MS", 30000)) * time.Millisecond,
		RenderCacheTTL:    time.Duration(getenvInt("RENDER_CACHE_TTL", 900)) * time.Second,
		SourcesFile:       os.Getenv("SOURCES_FILE"),
		ScheduleFile:      getenv("SCHEDULE_FILE", "schedule-config.yaml"),
		TaskMaxRetries:    getenvInt("TASK_MAX_RETRIES", 0),
		MaxParseFallbacks: getenvInt("MAX_PARSE_FALLBACKS", 3),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
	}
	return cfg
}

// APIKey returns the key for the configured LLM provider.
func (c Config) APIKey() string {
	switch strings.ToLower(c.LLMProvider) {
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

// Validate checks the batch surface. Missing API keys are not a validation
// error: scoring calls fail per item and are recorded as such.
func (c Config) Validate() error {
	return c.Batch.Validate()
}

func (b Batch) Validate() error {
	if b.Size <= 0 {
		return fmt.Errorf("%w: batch size must be > 0, got %d", ErrInvalid, b.Size)
	}
	if b.CostCeiling <= 0 {
		return fmt.Errorf("%w: cost ceiling must be > 0, got %v", ErrInvalid, b.CostCeiling)
	}
	if b.CheckpointInterval <= 0 {
		return fmt.Errorf("%w: checkpoint interval must be > 0, got %d", ErrInvalid, b.CheckpointInterval)
	}
	if b.InterItemDelay < 0 {
		return fmt.Errorf("%w: inter-item delay must be >= 0, got %s", ErrInvalid, b.InterItemDelay)
	}
	return nil
}
