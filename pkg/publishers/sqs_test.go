package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSQSPublisherPublishSuccess(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{
		id:       "queue",
		typ:      TypeSQS,
		queueURL: "https://example.com/queue",
		client:   client,
		log:      noopLogger{},
	}

	err := pub.Publish(context.Background(), Event{
		RequestID:  "list-items",
		Method:     "GET",
		Outcome:    "server",
		StatusCode: 404,
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if client.input == nil {
		t.Fatalf("client was not called")
	}
	if got := aws.ToString(client.input.QueueUrl); got != "https://example.com/queue" {
		t.Fatalf("QueueUrl = %s", got)
	}
	attr, ok := client.input.MessageAttributes["request_id"]
	if !ok || aws.ToString(attr.StringValue) != "list-items" {
		t.Fatalf("request_id attribute missing or wrong: %#v", attr)
	}
	if aws.ToString(attr.DataType) != "String" {
		t.Fatalf("DataType should be String, got %#v", attr.DataType)
	}
	if outcome := client.input.MessageAttributes["outcome"]; aws.ToString(outcome.StringValue) != "server" {
		t.Fatalf("outcome attribute wrong: %#v", outcome)
	}
	if !strings.Contains(aws.ToString(client.input.MessageBody), `"status_code":404`) {
		t.Fatalf("MessageBody missing status: %s", aws.ToString(client.input.MessageBody))
	}
}

func TestSQSPublisherSkipsEmptyAttributes(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{queueURL: "q", client: client, log: noopLogger{}}

	if err := pub.Publish(context.Background(), Event{Outcome: "ok"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, ok := client.input.MessageAttributes["request_id"]; ok {
		t.Fatalf("empty request_id should not be sent as attribute")
	}
}

func TestSQSPublisherPublishError(t *testing.T) {
	client := &fakeSQSClient{err: errors.New("boom")}
	pub := &sqsPublisher{
		queueURL: "https://example.com/queue",
		client:   client,
		log:      noopLogger{},
	}

	if err := pub.Publish(context.Background(), Event{RequestID: "a"}); err == nil {
		t.Fatalf("expected error from Publish")
	}
}

func TestSQSPublisherSetsFIFOFields(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{queueURL: "https://sqs.local/000000000000/calls.fifo", client: client, log: noopLogger{}}

	at := time.Unix(0, 42)
	if err := pub.Publish(context.Background(), Event{RequestID: "health", OccurredAt: at}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(client.input.MessageGroupId); got != "health" {
		t.Fatalf("MessageGroupId = %q", got)
	}
	if got := aws.ToString(client.input.MessageDeduplicationId); got != "health-42" {
		t.Fatalf("MessageDeduplicationId = %q", got)
	}

	if err := pub.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(client.input.MessageGroupId); got != defaultGroupID {
		t.Fatalf("expected default group id, got %q", got)
	}
}

func TestSQSPublisherStandardQueueHasNoGroup(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{queueURL: "https://sqs.local/000000000000/calls", client: client, log: noopLogger{}}

	if err := pub.Publish(context.Background(), Event{RequestID: "health", StatusCode: 200}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if client.input.MessageGroupId != nil || client.input.MessageDeduplicationId != nil {
		t.Fatalf("standard queue should not carry FIFO fields: %#v", client.input)
	}
	if got := aws.ToString(client.input.MessageAttributes["status_code"].StringValue); got != "200" {
		t.Fatalf("status_code attribute = %q", got)
	}
}
