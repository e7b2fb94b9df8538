package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/guard"
	"github.com/mcdev12/breakroom/go/internal/janitor"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/mcdev12/breakroom/go/internal/questions"
	"github.com/mcdev12/breakroom/go/internal/sessions"
)

// Config is the API server's file configuration. Secrets and addresses come from the environment.
type Config struct {
	Game struct {
		DefaultMinPlayers int `yaml:"default_min_players"`
		QuestionsPerGame  int `yaml:"questions_per_game"`
		TriviaWindowSec   int `yaml:"trivia_window_sec"`
	} `yaml:"game"`
	Arbiter struct {
		Workers int `yaml:"workers"`
	} `yaml:"arbiter"`
	Guard struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"guard"`
	Auth struct {
		AccessTTL time.Duration `yaml:"access_ttl"`
	} `yaml:"auth"`
	Janitor   janitor.Config    `yaml:"janitor"`
	Questions []models.Question `yaml:"questions"`
}

func defaultConfig() *Config {
	var c Config
	game := sessions.DefaultConfig()
	c.Game.DefaultMinPlayers = game.DefaultMinPlayers
	c.Game.QuestionsPerGame = game.QuestionsPerGame
	c.Game.TriviaWindowSec = game.TriviaWindowSec
	c.Arbiter.Workers = 4
	c.Guard.TTL = guard.DefaultTTL
	c.Auth.AccessTTL = auth.AccessTokenExpiry
	c.Janitor = janitor.DefaultConfig()
	c.Questions = questions.Default()
	return &c
}

// loadConfig overlays the YAML file at path on the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(config.Questions) == 0 {
		config.Questions = questions.Default()
	}
	return config, nil
}

func (c *Config) sessionsConfig() sessions.Config {
	return sessions.Config{
		DefaultMinPlayers: c.Game.DefaultMinPlayers,
		QuestionsPerGame:  c.Game.QuestionsPerGame,
		TriviaWindowSec:   c.Game.TriviaWindowSec,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
