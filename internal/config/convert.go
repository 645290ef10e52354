package config

import (
	"time"

	"github.com/cuongbtq/zimage-orchestrator/shared/logger"
	"github.com/cuongbtq/zimage-orchestrator/shared/postgresql"
	"github.com/cuongbtq/zimage-orchestrator/shared/rabbitmq"
)

// LoggerConfig maps the logging section onto the logger package
func (c *LoggingConfig) LoggerConfig() *logger.Config {
	timeFormat := c.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	return &logger.Config{
		Level:        c.Level,
		Format:       c.Format,
		Output:       c.Output,
		EnableSource: c.EnableSource,
		TimeFormat:   timeFormat,
		NoColor:      c.NoColor,
	}
}

// PostgresConfig maps the database section onto the postgresql client
func (c *DatabaseConfig) PostgresConfig() *postgresql.Config {
	return &postgresql.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// ClientConfig maps the rabbitmq section onto the rabbitmq client
func (c *RabbitMQConfig) ClientConfig() *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               c.Host,
		Port:               c.Port,
		User:               c.User,
		Password:           c.Password,
		VHost:              c.VHost,
		ExchangeName:       c.Exchange.Name,
		ExchangeType:       c.Exchange.Type,
		ExchangeDurable:    c.Exchange.Durable,
		ExchangeAutoDelete: c.Exchange.AutoDelete,
		QueueName:          c.Queue.Name,
		QueueDurable:       c.Queue.Durable,
		QueueAutoDelete:    c.Queue.AutoDelete,
		QueueExclusive:     c.Queue.Exclusive,
		RoutingKey:         c.RoutingKey,
		RetryAttempts:      c.Connection.RetryAttempts,
		RetryInterval:      c.Connection.RetryInterval,
		Heartbeat:          c.Connection.Heartbeat,
		ConnectionTimeout:  c.Connection.ConnectionTimeout,
		PublishRetries:     c.Publish.RetryAttempts,
		PublishRetryDelay:  c.Publish.RetryInterval,
		PublishBackoffMult: c.Publish.BackoffMultiplier,
		PrefetchCount:      c.Consumer.PrefetchCount,
	}
}
