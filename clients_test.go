package main

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSQSClient struct {
	mock.Mock
}

func (m *MockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.ReceiveMessageOutput), args.Error(1)
}

func (m *MockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.DeleteMessageOutput), args.Error(1)
}

func (m *MockSQSClient) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.GetQueueAttributesOutput), args.Error(1)
}

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

type MockSNSClient struct {
	mock.Mock
}

func (m *MockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

type MockAMQPChannel struct {
	mock.Mock
}

func (m *MockAMQPChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockAMQPChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/000000000000/contacts"

func TestSQSQueueReceive(t *testing.T) {
	mockSQS := new(MockSQSClient)
	queue := NewSQSQueue(mockSQS, testQueueURL, 10, 5)

	mockSQS.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(input *sqs.ReceiveMessageInput) bool {
		return *input.QueueUrl == testQueueURL && input.MaxNumberOfMessages == 10 && input.WaitTimeSeconds == 5
	})).Return(&sqs.ReceiveMessageOutput{
		Messages: []types.Message{
			{
				MessageId:     aws.String("m-1"),
				Body:          aws.String(adaBody),
				ReceiptHandle: aws.String("r-1"),
			},
			{
				MessageId:     aws.String("m-2"),
				ReceiptHandle: aws.String("r-2"),
			},
		},
	}, nil)

	messages, err := queue.Receive(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Message{
		{ID: "m-1", Body: adaBody, ReceiptHandle: "r-1"},
		{ID: "m-2", Body: "", ReceiptHandle: "r-2"},
	}, messages)
	mockSQS.AssertExpectations(t)
}

func TestSQSQueueReceiveEmptyAndError(t *testing.T) {
	mockSQS := new(MockSQSClient)
	queue := NewSQSQueue(mockSQS, testQueueURL, 10, 0)

	mockSQS.On("ReceiveMessage", mock.Anything, mock.Anything).Return(&sqs.ReceiveMessageOutput{}, nil).Once()
	mockSQS.On("ReceiveMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	messages, err := queue.Receive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, messages)

	_, err = queue.Receive(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSQSQueueDelete(t *testing.T) {
	mockSQS := new(MockSQSClient)
	queue := NewSQSQueue(mockSQS, testQueueURL, 10, 0)

	mockSQS.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(input *sqs.DeleteMessageInput) bool {
		return *input.QueueUrl == testQueueURL && *input.ReceiptHandle == "r-1"
	})).Return(&sqs.DeleteMessageOutput{}, nil)
	mockSQS.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(input *sqs.DeleteMessageInput) bool {
		return *input.ReceiptHandle == "expired"
	})).Return(nil, assert.AnError)

	assert.NoError(t, queue.Delete(context.Background(), "r-1"))
	assert.ErrorIs(t, queue.Delete(context.Background(), "expired"), assert.AnError)
	mockSQS.AssertExpectations(t)
}

func TestSQSQueueLogStats(t *testing.T) {
	mockSQS := new(MockSQSClient)
	queue := NewSQSQueue(mockSQS, testQueueURL, 10, 0)

	mockSQS.On("GetQueueAttributes", mock.Anything, mock.Anything).Return(&sqs.GetQueueAttributesOutput{
		Attributes: map[string]string{
			string(types.QueueAttributeNameApproximateNumberOfMessages):           "3",
			string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible): "1",
		},
	}, nil).Once()
	mockSQS.On("GetQueueAttributes", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	queue.LogStats(context.Background())
	queue.LogStats(context.Background())

	mockSQS.AssertNumberOfCalls(t, "GetQueueAttributes", 2)
}

func TestS3StorePut(t *testing.T) {
	tests := []struct {
		name        string
		visibility  Visibility
		expectedACL s3types.ObjectCannedACL
	}{
		{name: "public page", visibility: VisibilityPublic, expectedACL: s3types.ObjectCannedACLPublicRead},
		{name: "private page", visibility: VisibilityPrivate, expectedACL: s3types.ObjectCannedACLPrivate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockS3 := new(MockS3Client)
			store := NewS3Store(mockS3, "contacts-bucket")
			content := []byte("<html></html>")

			mockS3.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
				body, err := io.ReadAll(input.Body)
				return err == nil &&
					*input.Bucket == "contacts-bucket" &&
					*input.Key == "contacts/ada" &&
					input.ACL == tt.expectedACL &&
					*input.ContentLength == int64(len(content)) &&
					string(body) == string(content)
			})).Return(&s3.PutObjectOutput{}, nil)

			require.NoError(t, store.Put(context.Background(), "contacts/ada", content, tt.visibility))
			mockS3.AssertExpectations(t)
		})
	}
}

func TestS3StorePutError(t *testing.T) {
	mockS3 := new(MockS3Client)
	store := NewS3Store(mockS3, "contacts-bucket")
	mockS3.On("PutObject", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	err := store.Put(context.Background(), "contacts/ada", []byte("x"), VisibilityPublic)

	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "s3://contacts-bucket/contacts/ada")
}

func TestSNSPublisherPublish(t *testing.T) {
	mockSNS := new(MockSNSClient)
	publisher := NewSNSPublisher(mockSNS)

	mockSNS.On("Publish", mock.Anything, mock.MatchedBy(func(input *sns.PublishInput) bool {
		return *input.TopicArn == testTopic && *input.Message == adaBody
	})).Return(&sns.PublishOutput{}, nil).Once()
	mockSNS.On("Publish", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	assert.NoError(t, publisher.Publish(context.Background(), testTopic, adaBody))
	assert.ErrorIs(t, publisher.Publish(context.Background(), testTopic, adaBody), assert.AnError)
	mockSNS.AssertExpectations(t)
}

func TestAMQPPublisherPublish(t *testing.T) {
	ch := new(MockAMQPChannel)
	publisher := &AMQPPublisher{channel: ch, exchange: "contacts"}

	ch.On("PublishWithContext", mock.Anything, "contacts", "contacts.updated", false, false,
		mock.MatchedBy(func(msg amqp.Publishing) bool {
			return string(msg.Body) == adaBody && msg.DeliveryMode == amqp.Persistent
		})).Return(nil).Once()
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError).Once()
	ch.On("Close").Return(nil)

	assert.NoError(t, publisher.Publish(context.Background(), "contacts.updated", adaBody))
	assert.ErrorIs(t, publisher.Publish(context.Background(), "contacts.updated", adaBody), assert.AnError)
	assert.NoError(t, publisher.Close())
	ch.AssertExpectations(t)
}
