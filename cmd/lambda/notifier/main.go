package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/stock-ledger/internal/email"
	"github.com/example/stock-ledger/internal/infrastructure/kinesis"
	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/monitor"
	"github.com/example/stock-ledger/internal/notification"
	"github.com/rs/zerolog/log"
)

var notificationHandler *notification.Handler

// Lambda configuration comes from plain environment variables set on the function.
func init() {
	logging.Setup(getEnv("LOG_LEVEL", "info"), false)

	smtpHost := getEnv("SMTP_HOST", "localhost")
	smtpPort := getEnv("SMTP_PORT", "1025")
	smtpFrom := getEnv("SMTP_FROM", "noreply@stock-ledger.local")
	recipients := strings.Split(getEnv("ALERT_RECIPIENTS", "ops@stock-ledger.local"), ",")

	emailSvc := email.NewService(smtpHost, smtpPort, smtpFrom)
	notificationHandler = notification.NewHandler(emailSvc, recipients,
		monitor.New(atoiEnv("LOW_STOCK_THRESHOLD"), atoiEnv("CRITICAL_STOCK_LEVEL")))

	log.Info().Str("smtp", smtpHost+":"+smtpPort).Msg("Lambda notifier initialized")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// atoiEnv returns 0 for unset or malformed values; monitor.New falls back to its defaults.
func atoiEnv(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	logger := logging.Component("lambda-notifier")
	logger.Info().Int("records", len(kinesisEvent.Records)).Msg("Received batch")

	var batchItemFailures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord) {
		batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
			ItemIdentifier: record.Kinesis.SequenceNumber,
		})
	}

	for _, record := range kinesisEvent.Records {
		change, err := kinesis.ConvertFromKinesisRecord(record)
		if err != nil {
			logger.Error().Err(err).Str("eventId", record.EventID).Msg("Failed to convert record")
			fail(record)
			continue
		}

		if err := notificationHandler.HandleLedgerChange(ctx, change); err != nil {
			logger.Error().Err(err).Str("eventId", record.EventID).Msg("Failed to process ledger change")
			fail(record)
		}
	}

	logger.Info().
		Int("succeeded", len(kinesisEvent.Records)-len(batchItemFailures)).
		Int("total", len(kinesisEvent.Records)).
		Msg("Batch processed")

	return events.KinesisEventResponse{
		BatchItemFailures: batchItemFailures,
	}, nil
}

func main() {
	lambda.Start(handler)
}
