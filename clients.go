package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// capabilities the coordinator consumes

type QueueClient interface {
	Receive(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type ArtifactStore interface {
	Put(ctx context.Context, key string, content []byte, visibility Visibility) error
}

type NotificationPublisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// the subset of each AWS SDK client the adapters call, mocked in tests

type SQSClientInterface interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type S3ClientInterface interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type SNSClientInterface interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SQSQueue struct {
	client      SQSClientInterface
	queueURL    string
	maxMessages int32
	waitSeconds int32
}

func NewSQSQueue(client SQSClientInterface, queueURL string, maxMessages, waitSeconds int32) *SQSQueue {
	return &SQSQueue{
		client:      client,
		queueURL:    queueURL,
		maxMessages: maxMessages,
		waitSeconds: waitSeconds,
	}
}

func (q *SQSQueue) Receive(ctx context.Context) ([]Message, error) {
	result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: q.maxMessages,
		WaitTimeSeconds:     q.waitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", q.queueURL, err)
	}

	messages := make([]Message, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", q.queueURL, err)
	}
	return nil
}

// best effort, a failure here never stops the cycle
func (q *SQSQueue) LogStats(ctx context.Context) {
	result, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch queue stats")
		return
	}

	log.Info().
		Str("available", result.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]).
		Str("in_flight", result.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)]).
		Msg("SQS queue stats")
}

type S3Store struct {
	client S3ClientInterface
	bucket string
}

func NewS3Store(client S3ClientInterface, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, content []byte, visibility Visibility) error {
	acl := s3types.ObjectCannedACLPublicRead
	if visibility == VisibilityPrivate {
		acl = s3types.ObjectCannedACLPrivate
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String("text/html; charset=utf-8"),
		ACL:           acl,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

type SNSPublisher struct {
	client SNSClientInterface
}

func NewSNSPublisher(client SNSClientInterface) *SNSPublisher {
	return &SNSPublisher{client: client}
}

func (p *SNSPublisher) Publish(ctx context.Context, topic, payload string) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(payload),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
