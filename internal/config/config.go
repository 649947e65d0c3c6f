package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel   string `yaml:"log-level" env-default:"info"`
	HTTPPort   string `yaml:"http-port" env-default:"9090"`
	SocketPort string `yaml:"socket-port" env-default:"8081"`
	Game       Game   `yaml:"game"`
}

type Game struct {
	// MaxParticipants caps seats plus spectators per room; zero or
	// negative means unlimited.
	MaxParticipants int `yaml:"max-participants" env-default:"10"`

	// KeepOnDisconnect retains a participant's seat across transport
	// disconnects so the player can reconnect to an in-progress game.
	KeepOnDisconnect bool `yaml:"keep-on-disconnect" env-default:"true"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}
