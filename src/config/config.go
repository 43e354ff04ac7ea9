package config

import (
	"os"
	"strconv"
	"time"

	"github.com/stake-plus/agora/src/data"
)

// AI holds LLM provider configuration.
type AI struct {
	Provider     string
	Model        string
	OpenAIKey    string
	ClaudeKey    string
	SystemPrompt string
	Temperature  float64
}

// Config is the full service configuration. Values come from the
// agora_settings table when present, falling back to environment variables
// and baked-in defaults.
type Config struct {
	MySQLDSN string
	RedisURL string
	Port     string

	CouncilSize    int // fixed council roster size
	Supermajority  int // absolute nomination count to evict a member
	TargetPoolSize int // initial candidate pool target

	AgentAttempts int           // retry budget per agent call
	AgentBackoff  time.Duration // initial backoff between attempts

	DiscordToken   string
	DiscordChannel string

	AI AI
}

// Load builds configuration from env only. Services with a DB connection
// should call data.LoadSettings first so table values win.
func Load() Config {
	return Config{
		MySQLDSN: os.Getenv("MYSQL_DSN"),
		RedisURL: getSetting("redis_url", "REDIS_URL", ""),
		Port:     getSetting("port", "PORT", "8080"),

		CouncilSize:    getInt("council_size", "COUNCIL_SIZE", 8),
		Supermajority:  getInt("council_supermajority", "COUNCIL_SUPERMAJORITY", 6),
		TargetPoolSize: getInt("target_pool_size", "TARGET_POOL_SIZE", 5),

		AgentAttempts: getInt("agent_attempts", "AGENT_ATTEMPTS", 3),
		AgentBackoff:  time.Duration(getInt("agent_backoff_ms", "AGENT_BACKOFF_MS", 2000)) * time.Millisecond,

		DiscordToken:   getSetting("discord_token", "DISCORD_TOKEN", ""),
		DiscordChannel: getSetting("discord_channel", "DISCORD_CHANNEL", ""),

		AI: AI{
			Provider:     getSetting("ai_provider", "AI_PROVIDER", "openai"),
			Model:        getSetting("ai_model", "AI_MODEL", ""),
			OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
			ClaudeKey:    os.Getenv("CLAUDE_API_KEY"),
			SystemPrompt: getSetting("ai_system_prompt", "AI_SYSTEM_PROMPT", ""),
			Temperature:  getFloat("ai_temperature", "AI_TEMPERATURE", 0.7),
		},
	}
}

// getSetting retrieves a setting with env fallback.
func getSetting(name, envKey, defaultValue string) string {
	val := data.GetSetting(name)
	if val == "" {
		val = os.Getenv(envKey)
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

func getInt(name, envKey string, defaultValue int) int {
	raw := getSetting(name, envKey, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(name, envKey string, defaultValue float64) float64 {
	raw := getSetting(name, envKey, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return v
}
