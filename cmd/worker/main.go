package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bel-commons/bel-commons/internal/enrich"
	"github.com/bel-commons/bel-commons/internal/notify"
	"github.com/bel-commons/bel-commons/internal/queue"
	"github.com/bel-commons/bel-commons/internal/storage"
	"github.com/bel-commons/bel-commons/internal/util"
	"github.com/bel-commons/bel-commons/pkg/leaselock"
	"github.com/bel-commons/bel-commons/pkg/logger"
	"github.com/bel-commons/bel-commons/pkg/logger/console"
	"github.com/bel-commons/bel-commons/pkg/pipeline"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// Remote resource clients for the parse pipeline
	resolver := enrich.NewHTTPResolver()
	pubmed := enrich.NewClient(util.GetEnv("PUBMED_BASE_URL"))

	var notifier notify.Notifier
	if domain := util.GetEnv("MAILGUN_DOMAIN"); domain != "" {
		notifier = notify.NewMailgunNotifier(
			domain,
			util.GetEnv("MAILGUN_API_KEY"),
			util.GetEnvString("MAIL_SENDER", "noreply@"+domain),
		)
	} else {
		notifier = notify.LogNotifier{}
	}

	registry := pipeline.Default()

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// Reap stale work on a schedule; the lease keeps it to one worker.
	locks := leaselock.New(pgConn)
	reaper := cron.New()
	_, err = reaper.AddFunc("*/10 * * * *", func() {
		err := locks.WithLease(ctx, "stale_work_reaper", leaselock.Options{
			TTL: 5 * time.Minute,
		}, func(ctx context.Context) error {
			return queue.RecoverStaleWork(ctx, ch, pgConn)
		})
		if err != nil && err != leaselock.ErrBusy {
			logger.Error("Stale work recovery failed", "err", err)
		}
	})
	if err != nil {
		logger.Fatal("Failed to schedule stale work reaper", "err", err)
	}
	reaper.Start()
	defer reaper.Stop()

	logger.Info("Listening for messages")

	// Create a single consumer channel with prefetch=1
	// This ensures only ONE message is delivered at a time across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	queues := []string{queue.UploadQueue, queue.ExperimentQueue}
	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.UploadQueue:
					processingErr = queue.ProcessUploadMessage(ctx, s3Client, pubmed, resolver, notifier, ch, pgConn, string(qm.msg.Body))
				case queue.ExperimentQueue:
					processingErr = queue.ProcessExperimentMessage(ctx, s3Client, registry, notifier, ch, pgConn, string(qm.msg.Body))
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(ctx, consumerCh, pgConn, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ctx context.Context, ch *amqp.Channel, pgConn *pgxpool.Pool, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "text/plain",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	// Put the claimed row back in the queued state so the retried delivery
	// can claim it again.
	queue.ResetStateForRetry(ctx, pgConn, queueName, msg.Body)

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "text/plain",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
