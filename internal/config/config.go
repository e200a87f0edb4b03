package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type AuthConfig struct {
	Secret        string `yaml:"secret" env:"MENTORHUB_AUTH_SECRET" env-default:""`
	TokenTTLHours int    `yaml:"token_ttl_hours" env-default:"168"`
}

type InviteConfig struct {
	CodeLength     int `yaml:"code_length" env-default:"12"`
	DefaultMaxUses int `yaml:"default_max_uses" env-default:"1"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"mentorhub"`
}

type MySQLConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	HostName string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"3306"`
	UserName string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"mentorhub"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" env-default:"false"`
	ApiKey  string `yaml:"api_key" env:"MENTORHUB_TG_KEY" env-default:""`
}

type StreamConfig struct {
	BufferSize int `yaml:"buffer_size" env-default:"16"`
}

type Config struct {
	Listen   Listen         `yaml:"listen"`
	Auth     AuthConfig     `yaml:"auth"`
	Invite   InviteConfig   `yaml:"invite"`
	Mongo    MongoConfig    `yaml:"mongo"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Telegram TelegramConfig `yaml:"telegram"`
	Stream   StreamConfig   `yaml:"stream"`
	Env      string         `yaml:"env" env-default:"local"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
