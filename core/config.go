package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings for the realtime core.
type Config struct {
	Debug     bool
	TestMode  bool
	AppName   string
	Env       string
	Build     string
	SecretKey string

	Rollbar struct {
		Token string
	}

	Socket struct {
		URL                  string
		AckTimeout           time.Duration
		ReconnectMaxInterval time.Duration
	}

	Conference struct {
		AppID string
	}

	Chat struct {
		TypingTimeout     time.Duration
		MaxVisibleWindows int
		CallNotifyDelay   time.Duration
	}
}

var Conf *Config

func init() {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Beeline")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "u#0t9a&&e+bee$line!0upr2s4k3y^0f-l4st+re5ort")
	v.SetDefault("socket.url", "ws://localhost:8000/ws")
	v.SetDefault("socket.ackTimeout", 10*time.Second)
	v.SetDefault("socket.reconnectMaxInterval", 30*time.Second)
	v.SetDefault("conference.appID", "beeline-dev")
	v.SetDefault("chat.typingTimeout", 2000*time.Millisecond)
	v.SetDefault("chat.maxVisibleWindows", 3)
	v.SetDefault("chat.callNotifyDelay", 3*time.Second)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetDefault("env", env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	Conf = new(Config)
	if err := v.Unmarshal(Conf); err != nil {
		log.Fatalf("config.viper.Unmarshal: %v", err)
	}
}
