package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSQS is a mock implementation of SendMessageAPI
type MockSQS struct {
	mock.Mock
}

func (m *MockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func TestForwarder_Process(t *testing.T) {
	client := new(MockSQS)
	forwarder := NewForwarder(client, "https://sqs.eu-west-1.amazonaws.com/123/health")

	op := queue.NewOperation(queue.TypeDataUpload, queue.MustPayload(map[string]int{"steps": 100}), queue.PriorityHigh)
	op.Attempts = 2

	client.On("SendMessage", mock.Anything, mock.Anything).
		Return(&sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(*sqs.SendMessageInput)
			assert.Nil(t, input.MessageGroupId)

			var msg Message
			require.NoError(t, json.Unmarshal([]byte(aws.ToString(input.MessageBody)), &msg))
			assert.Equal(t, op.ID, msg.ID)
			assert.Equal(t, queue.TypeDataUpload, msg.Type)
			assert.Equal(t, "high", msg.Priority)
			assert.Equal(t, 2, msg.Attempt)
			assert.JSONEq(t, `{"steps":100}`, string(msg.Payload.Data))
			assert.Equal(t, "data_upload", aws.ToString(input.MessageAttributes["OperationType"].StringValue))
		})

	require.NoError(t, forwarder.Process(context.Background(), op))
	client.AssertExpectations(t)
}

func TestForwarder_FIFOQueue(t *testing.T) {
	client := new(MockSQS)
	forwarder := NewForwarder(client, "https://sqs.eu-west-1.amazonaws.com/123/health.fifo")
	op := queue.NewOperation(queue.TypeDelete, queue.MustPayload(nil), queue.PriorityNormal)

	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.MessageGroupId) == "delete" && aws.ToString(in.MessageDeduplicationId) == op.ID
	})).Return(&sqs.SendMessageOutput{}, nil)

	require.NoError(t, forwarder.Process(context.Background(), op))
	client.AssertExpectations(t)
}

func TestForwarder_ErrorClassification(t *testing.T) {
	op := queue.NewOperation(queue.TypeRemoteRequest, queue.MustPayload(nil), queue.PriorityNormal)

	tests := []struct {
		name string
		err  error
		want queue.Class
	}{
		{
			name: "send failure",
			err:  &smithyhttp.RequestSendError{Err: errors.New("dial tcp: connection refused")},
			want: queue.ClassRetryable,
		},
		{
			name: "throttled",
			err: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
				Err:      errors.New("throttled"),
			},
			want: queue.ClassRetryable,
		},
		{
			name: "access denied",
			err: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
				Err:      errors.New("denied"),
			},
			want: queue.ClassTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockSQS)
			client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, tt.err)

			err := NewForwarder(client, "https://sqs.local/q").Process(context.Background(), op)
			require.Error(t, err)
			assert.Equal(t, tt.want, queue.Classify(err))
		})
	}
}
