package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const defaultEnvPath = "./configs/.env"

var (
	once     sync.Once
	instance *Config
)

type Config struct {
}

// New loads ./configs/.env once. Variables already present in the environment win.
func New() *Config {
	return Load(defaultEnvPath)
}

func Load(path string) *Config {
	once.Do(func() {
		err := godotenv.Load(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Fatal("loading envs error: ", err)
		}
		instance = &Config{}
	})
	return instance
}

func (c *Config) GetString(key string) string {
	return os.Getenv(key)
}

func (c *Config) GetStringOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (c *Config) GetInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func (c *Config) GetDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// GetLocation reads an IANA timezone name. Unknown names are fatal.
func (c *Config) GetLocation(key string, def *time.Location) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return def
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatal("invalid timezone in "+key+": ", err)
	}
	return loc
}
