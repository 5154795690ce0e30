package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultSystemPrompt = "You are an AI phone receptionist for CPR Cell Phone Repair in Myrtle Beach. " +
	"Answer concisely in a friendly, professional tone. " +
	"Business details: " +
	"Hours: 9 AM to 6 PM weekdays, closed on Sunday. " +
	"Location: 1000 South Commons Drive, Myrtle Beach, South Carolina 29588. Highway 17 Business near Surfside. " +
	"Pricing: Screen repairs range from $99.99 to $499.99 depending on model. " +
	"Turnaround: Same day, often within 1 to 2 hours."

type Config struct {
	Server struct {
		Port      string
		GRPCPort  string
		LogLevel  string
		PublicURL string
	}
	Voice struct {
		Name          string
		Language      string
		Rate          string
		GatherTimeout int
		SpeechTimeout string
		Hints         []string
		AskName       bool
		Greeting      string
	}
	Business struct {
		Name        string
		Hours       string
		Address     string
		Phone       string
		Landmarks   string
		Destination string
	}
	OpenAI struct {
		APIKey       string
		BaseURL      string
		Model        string
		MaxTokens    int
		SystemPrompt string
		MemoryTurns  int
	}
	Maps struct {
		APIKey  string
		BaseURL string
		Region  string
	}
	Twilio struct {
		AccountSID        string
		AuthToken         string
		FromNumber        string
		ValidateSignature bool
	}
	Directions struct {
		Delivery string
	}
	Session struct {
		Backend       string
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		IdleTTL       time.Duration
	}
	Upstream struct {
		Timeout time.Duration
	}
	Monitor struct {
		TokenSecret   string
		TokenSkewSecs int
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("voice.name", "Polly.Matthew")
	v.SetDefault("voice.language", "en-US")
	v.SetDefault("voice.rate", "90%")
	v.SetDefault("voice.gather_timeout", 2)
	v.SetDefault("voice.speech_timeout", "auto")
	v.SetDefault("voice.hints", "screen repair,battery,directions,hours,address,Myrtle Beach,Surfside,Highway 17")
	v.SetDefault("voice.ask_name", false)
	v.SetDefault("voice.greeting", "Hi, this is Chris from CPR Myrtle Beach. How can I help you today?")

	v.SetDefault("business.name", "CPR Cell Phone Repair Myrtle Beach")
	v.SetDefault("business.hours", "9 AM to 6 PM on weekdays, and we're closed on Sunday")
	v.SetDefault("business.address", "1000 South Commons Drive, Myrtle Beach, South Carolina 29588")
	v.SetDefault("business.phone", "843-555-0142")
	v.SetDefault("business.landmarks", "on Highway 17 Business near Surfside, in the South Commons shopping center")
	v.SetDefault("business.destination", "1000 South Commons Drive, Myrtle Beach, SC 29588")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 80)
	v.SetDefault("openai.system_prompt", defaultSystemPrompt)
	v.SetDefault("openai.memory_turns", 5)

	v.SetDefault("maps.base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("maps.region", "us")

	v.SetDefault("twilio.validate_signature", false)
	v.SetDefault("directions.delivery", "steps")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("session.idle_ttl", "2h")

	v.SetDefault("upstream.timeout", "8s")
	v.SetDefault("monitor.token_skew_secs", 30)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.grpc_port", "GRPC_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.public_url", "PUBLIC_URL")

	v.BindEnv("voice.name", "VOICE_NAME")
	v.BindEnv("voice.language", "VOICE_LANGUAGE")
	v.BindEnv("voice.rate", "VOICE_RATE")
	v.BindEnv("voice.gather_timeout", "GATHER_TIMEOUT")
	v.BindEnv("voice.speech_timeout", "SPEECH_TIMEOUT")
	v.BindEnv("voice.hints", "SPEECH_HINTS")
	v.BindEnv("voice.ask_name", "ASK_NAME")
	v.BindEnv("voice.greeting", "GREETING")

	v.BindEnv("business.name", "BUSINESS_NAME")
	v.BindEnv("business.hours", "BUSINESS_HOURS")
	v.BindEnv("business.address", "BUSINESS_ADDRESS")
	v.BindEnv("business.phone", "BUSINESS_PHONE")
	v.BindEnv("business.landmarks", "BUSINESS_LANDMARKS")
	v.BindEnv("business.destination", "BUSINESS_DESTINATION")

	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("openai.model", "OPENAI_MODEL")
	v.BindEnv("openai.max_tokens", "OPENAI_MAX_TOKENS")
	v.BindEnv("openai.system_prompt", "SYSTEM_PROMPT")
	v.BindEnv("openai.memory_turns", "MEMORY_TURNS")

	v.BindEnv("maps.api_key", "GOOGLE_MAPS_API_KEY")
	v.BindEnv("maps.base_url", "MAPS_BASE_URL")
	v.BindEnv("maps.region", "MAPS_REGION")

	v.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	v.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	v.BindEnv("twilio.from_number", "TWILIO_FROM_NUMBER")
	v.BindEnv("twilio.validate_signature", "TWILIO_VALIDATE_SIGNATURE")

	v.BindEnv("directions.delivery", "DIRECTIONS_DELIVERY")

	v.BindEnv("session.backend", "SESSION_BACKEND")
	v.BindEnv("session.redis_addr", "REDIS_ADDR")
	v.BindEnv("session.redis_password", "REDIS_PASSWORD")
	v.BindEnv("session.redis_db", "REDIS_DB")
	v.BindEnv("session.idle_ttl", "SESSION_IDLE_TTL")

	v.BindEnv("upstream.timeout", "UPSTREAM_TIMEOUT")

	v.BindEnv("monitor.token_secret", "MONITOR_TOKEN_SECRET")
	v.BindEnv("monitor.token_skew_secs", "MONITOR_TOKEN_SKEW_SECS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.GRPCPort = toString(v.Get("server.grpc_port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.PublicURL = strings.TrimRight(v.GetString("server.public_url"), "/")

	c.Voice.Name = v.GetString("voice.name")
	c.Voice.Language = v.GetString("voice.language")
	c.Voice.Rate = v.GetString("voice.rate")
	c.Voice.GatherTimeout = v.GetInt("voice.gather_timeout")
	c.Voice.SpeechTimeout = v.GetString("voice.speech_timeout")
	c.Voice.Hints = splitList(v.GetString("voice.hints"))
	c.Voice.AskName = v.GetBool("voice.ask_name")
	c.Voice.Greeting = v.GetString("voice.greeting")

	c.Business.Name = v.GetString("business.name")
	c.Business.Hours = v.GetString("business.hours")
	c.Business.Address = v.GetString("business.address")
	c.Business.Phone = v.GetString("business.phone")
	c.Business.Landmarks = v.GetString("business.landmarks")
	c.Business.Destination = v.GetString("business.destination")

	c.OpenAI.APIKey = v.GetString("openai.api_key")
	c.OpenAI.BaseURL = v.GetString("openai.base_url")
	c.OpenAI.Model = v.GetString("openai.model")
	c.OpenAI.MaxTokens = v.GetInt("openai.max_tokens")
	c.OpenAI.SystemPrompt = v.GetString("openai.system_prompt")
	c.OpenAI.MemoryTurns = v.GetInt("openai.memory_turns")

	c.Maps.APIKey = v.GetString("maps.api_key")
	c.Maps.BaseURL = v.GetString("maps.base_url")
	c.Maps.Region = v.GetString("maps.region")

	c.Twilio.AccountSID = v.GetString("twilio.account_sid")
	c.Twilio.AuthToken = v.GetString("twilio.auth_token")
	c.Twilio.FromNumber = v.GetString("twilio.from_number")
	c.Twilio.ValidateSignature = v.GetBool("twilio.validate_signature")

	c.Directions.Delivery = strings.ToLower(v.GetString("directions.delivery"))

	c.Session.Backend = strings.ToLower(v.GetString("session.backend"))
	c.Session.RedisAddr = v.GetString("session.redis_addr")
	c.Session.RedisPassword = v.GetString("session.redis_password")
	c.Session.RedisDB = v.GetInt("session.redis_db")
	c.Session.IdleTTL = v.GetDuration("session.idle_ttl")

	c.Upstream.Timeout = v.GetDuration("upstream.timeout")

	c.Monitor.TokenSecret = v.GetString("monitor.token_secret")
	c.Monitor.TokenSkewSecs = v.GetInt("monitor.token_skew_secs")

	return c
}

func toString(v any) string { return fmt.Sprint(v) }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
