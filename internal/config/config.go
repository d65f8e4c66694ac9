// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Sweeps                  `yaml:"sweeps"`
	Razorpay                `yaml:"razorpay"`
	WhatsApp                `yaml:"whatsapp"`
	TelegramBot             `yaml:"telegram_bot"`
	RabbitMQ                `yaml:"rabbitmq"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Sweeps структура для настройки фоновых задач:
// интервалы запуска и дефолтный срок напоминания в днях.
type Sweeps struct {
	ExpiryInterval      time.Duration `yaml:"expiry_interval" env-default:"1h"`
	ReminderInterval    time.Duration `yaml:"reminder_interval" env-default:"24h"`
	DefaultReminderDays int           `yaml:"default_reminder_days" env-default:"3"`
	WorkerCount         int           `yaml:"worker_count" env-default:"8"`
	AdapterTimeout      time.Duration `yaml:"adapter_timeout" env-default:"10s"`
}

// Razorpay структура с учетными данными платёжного шлюза.
// Пустой KeyID переключает адаптер в симулированный режим.
type Razorpay struct {
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
}

// WhatsApp структура с учетными данными мессенджера.
// Пустой APIKey переключает адаптер в симулированный режим.
type WhatsApp struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// TelegramBot структура с учетными данными Bot API.
// Пустой Token переключает адаптер в симулированный режим.
type TelegramBot struct {
	Token string `yaml:"token"`
}

// RabbitMQ структура для подключения к брокеру очереди повторных удалений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env-default:"10"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env-default:"3s"`
}

// MustLoad функция для загрузки конфига, возвращает конфиг, сгенерированный из config/config.yaml
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Sweeps:\n"+
			"  ExpiryInterval: %s\n"+
			"  ReminderInterval: %s\n"+
			"  DefaultReminderDays: %d\n"+
			"Razorpay simulated: %t\n"+
			"WhatsApp simulated: %t\n"+
			"TelegramBot simulated: %t\n",
		c.Env,
		c.StorageConnectionString,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.ExpiryInterval,
		c.ReminderInterval,
		c.DefaultReminderDays,
		c.Razorpay.KeyID == "",
		c.WhatsApp.APIKey == "",
		c.TelegramBot.Token == "",
	)
}
