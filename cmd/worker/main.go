package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"ucihub/internal/config"
	"ucihub/internal/hub"
	"ucihub/internal/models"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

func main() {
	baseCtx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	hub.MustInitDB()

	queueURL := cfg.QueueURL
	if queueURL == "" {
		queueURL = os.Getenv("QUEUE_URL")
	}
	if queueURL == "" {
		log.Fatal("QUEUE_URL environment variable is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(baseCtx)
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	log.Printf("Worker started, listening on SQS queue: %s", queueURL)

	for {
		recvCtx, cancel := context.WithTimeout(baseCtx, 30*time.Second)
		resp, err := sqsClient.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            &queueURL,
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   180,
		})
		cancel()

		if err != nil {
			log.Printf("ReceiveMessage error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		if len(resp.Messages) == 0 {
			time.Sleep(2 * time.Second)
			continue
		}

		for _, m := range resp.Messages {
			if m.Body == nil {
				log.Printf("received message with empty body, skipping: %#v", m)
				continue
			}

			var job models.JobMessage
			if err := json.Unmarshal([]byte(*m.Body), &job); err != nil {
				log.Printf("failed to unmarshal job message: %v, body=%s", err, *m.Body)
				deleteMessage(sqsClient, queueURL, m)
				continue
			}

			log.Printf("Received job: user=%s batch_index=%d num_games=%d job_id=%s",
				job.User, job.BatchIndex, job.NumGames, job.JobID)

			jobCtx, jobCancel := context.WithTimeout(baseCtx, 2*time.Minute)
			err := hub.ProcessBatch(jobCtx, cfg, job)
			jobCancel()

			if err != nil {
				log.Printf("error processing job job_id=%s user=%s batch_index=%d: %v",
					job.JobID, job.User, job.BatchIndex, err)
				continue
			}

			if job.JobID != "" {
				progressCtx, progressCancel := context.WithTimeout(baseCtx, 10*time.Second)
				if err := hub.UpdateJobProgress(progressCtx, job.JobID); err != nil {
					log.Printf("UpdateJobProgress failed job_id=%s: %v", job.JobID, err)
				}
				progressCancel()
			}

			deleteMessage(sqsClient, queueURL, m)
		}
	}
}

func deleteMessage(sqsClient *sqs.Client, queueURL string, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := sqsClient.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      &queueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.Printf("failed to delete SQS message: %v", err)
	}
}
