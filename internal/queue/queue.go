package queue

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/bel-commons/bel-commons/internal/util"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// Work queues. Each gets a _retry queue that dead letters back after a
// short TTL and a _dlq for messages that exhausted their retries.
const (
	UploadQueue     = "upload_queue"
	ExperimentQueue = "experiment_queue"
)

// pubsubExchange carries report and experiment progress events for clients
// that poll the API.
const pubsubExchange = "pubsub_exchange"

// UploadMsg asks a worker to run the parse pipeline for a report.
type UploadMsg struct {
	Message  string `json:"message"`
	ReportID int64  `json:"report_id"`
}

// ExperimentMsg asks a worker to score an experiment.
type ExperimentMsg struct {
	Message      string `json:"message"`
	ExperimentID int64  `json:"experiment_id"`
}

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

func SetupQueues(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		pubsubExchange,
		"topic",
		false, // durable
		true,  // autoDelete
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatal("ExchangeDeclare failed", "err", err)
	}

	queues := []string{UploadQueue, ExperimentQueue}
	for _, name := range queues {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", name, "err", err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", dlqName, "err", err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(10000),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", retryName, "err", err)
		}
	}

	return nil
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "text/plain",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	err = ch.Publish(
		"",
		q.Name,
		false,
		false,
		publishing,
	)
	if err != nil {
		return err
	}

	return nil
}

func PublishTopic(ch *amqp091.Channel, topic string, data []byte) error {
	err := ch.ExchangeDeclare(
		pubsubExchange,
		"topic",
		false, // durable
		true,  // autoDelete
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "text/plain",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	err = ch.Publish(
		pubsubExchange,
		topic,
		false,
		true,
		publishing,
	)
	if err != nil {
		return err
	}

	return nil
}

// PublishStateChange pushes a report or experiment state transition onto
// the pubsub exchange so clients polling the API can switch to push.
func PublishStateChange(ch *amqp091.Channel, kind string, id int64, state string) {
	topic := fmt.Sprintf("%s.%d.state", kind, id)
	if err := PublishTopic(ch, topic, []byte(state)); err != nil {
		logger.Warn("[Queue] Failed to publish state change", "topic", topic, "state", state, "err", err)
	}
}
