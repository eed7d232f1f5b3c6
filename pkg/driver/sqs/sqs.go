package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/telemetry"
)

// SendMessageAPI is the subset of the SQS client used by Forwarder
type SendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message is the body written for each forwarded operation
type Message struct {
	ID       string        `json:"id"`
	Type     queue.Type    `json:"type"`
	Priority string        `json:"priority"`
	Attempt  int           `json:"attempt"`
	Payload  queue.Payload `json:"payload"`
}

// Forwarder is a handler that delivers operations to an SQS queue instead of
// calling the backend directly.
type Forwarder struct {
	client   SendMessageAPI
	queueUrl string
}

// NewForwarder creates a new SQS forwarding handler
func NewForwarder(client SendMessageAPI, queueUrl string) *Forwarder {
	return &Forwarder{
		client:   client,
		queueUrl: queueUrl,
	}
}

// Process sends op to the queue
func (f *Forwarder) Process(ctx context.Context, op *queue.Operation) error {
	body, err := json.Marshal(Message{
		ID:       op.ID,
		Type:     op.Type,
		Priority: op.Priority.String(),
		Attempt:  op.Attempts,
		Payload:  op.Payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", queue.ErrInvalidPayload, err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueUrl),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"OperationType": {DataType: aws.String("String"), StringValue: aws.String(string(op.Type))},
			"Priority":      {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(int(op.Priority)))},
		},
	}
	// FIFO queues need a group and deduplicate on the operation ID
	if strings.HasSuffix(f.queueUrl, ".fifo") {
		input.MessageGroupId = aws.String(string(op.Type))
		input.MessageDeduplicationId = aws.String(op.ID)
	}

	out, err := f.client.SendMessage(ctx, input)
	if err != nil {
		return mapError(err)
	}

	logger := telemetry.LoggerFromContext(ctx)
	logger.Debug().
		Str("operation_id", op.ID).
		Str("message_id", aws.ToString(out.MessageId)).
		Msg("Forwarded operation to SQS")
	return nil
}

// mapError marks failures to reach SQS as transport errors. Service
// responses keep their HTTPStatusCode accessor for classification.
func mapError(err error) error {
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return &queue.TransportError{Err: err}
	}
	return err
}

var _ queue.Handler = (*Forwarder)(nil)
