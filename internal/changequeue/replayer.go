// Package changequeue replays change stream batches that exhausted their retries.
//
// The stream function's event source mapping sends a failed batch's metadata, not its
// records, to an SQS on-failure destination. The replayer reads that metadata, fetches the
// batch back from the stream and projects it.
package changequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/dannyrandall/moviecatalog/internal/changelog"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxReceive is the most messages SQS returns from one receive call.
const maxReceive = 10

type SQS interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Streams interface {
	GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// BatchInfo locates a failed batch within a stream shard.
type BatchInfo struct {
	ShardID             string `json:"shardId"`
	StartSequenceNumber string `json:"startSequenceNumber"`
	EndSequenceNumber   string `json:"endSequenceNumber"`
	BatchSize           int    `json:"batchSize"`
	StreamArn           string `json:"streamArn"`
}

// FailureRecord is the body of an on-failure destination message.
type FailureRecord struct {
	RequestContext struct {
		Condition              string `json:"condition"`
		ApproximateInvokeCount int    `json:"approximateInvokeCount"`
	} `json:"requestContext"`
	BatchInfo BatchInfo `json:"DDBStreamBatchInfo"`
}

type Replayer struct {
	SQS       SQS
	Streams   Streams
	Projector *changelog.Projector
	Tracer    trace.Tracer
	Logger    *zap.Logger

	QueueName string
	QueueURL  string
	// BatchSize caps the messages taken per receive.
	BatchSize int
	// MaxAttempts is how many times a message is tried before it is dropped.
	MaxAttempts int
}

// ReceiveAndProcess replays batches until ctx is done.
func (q *Replayer) ReceiveAndProcess(ctx context.Context) error {
	for {
		if err := q.RecvAndProcess(ctx); err != nil {
			q.Logger.Error("replay failed", zap.Error(err))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// RecvAndProcess performs one receive and replays every message it returns.
func (q *Replayer) RecvAndProcess(ctx context.Context) error {
	ctx, span := q.Tracer.Start(ctx, "recvAndProcess",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.MessagingSystemAWSSqs,
			semconv.MessagingDestinationName(q.QueueName),
		))
	defer span.End()

	msgs, err := q.receiveMessages(ctx)
	if err != nil {
		return spanErrorf(span, "receive messages: %w", err)
	}

	for _, msg := range msgs {
		if err := q.processMessage(ctx, msg); err != nil {
			return spanErrorf(span, "process message %q: %w", aws.ToString(msg.MessageId), err)
		}
	}
	return nil
}

func spanErrorf(span trace.Span, format string, a ...any) error {
	err := fmt.Errorf(format, a...)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (q *Replayer) receiveMessages(ctx context.Context) ([]types.Message, error) {
	n := q.BatchSize
	if n <= 0 || n > maxReceive {
		n = maxReceive
	}

	res, err := q.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.QueueURL),
		MaxNumberOfMessages: int32(n),
		WaitTimeSeconds:     20,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (q *Replayer) processMessage(ctx context.Context, msg types.Message) error {
	ctx, span := q.Tracer.Start(ctx, "processMessage",
		trace.WithAttributes(semconv.MessagingMessageID(aws.ToString(msg.MessageId))))
	defer span.End()

	log := q.Logger.With(zap.String("messageId", aws.ToString(msg.MessageId)))

	if n := receiveCount(msg); q.MaxAttempts > 0 && n > q.MaxAttempts {
		log.Error("dropping failed stream batch", zap.Int("receiveCount", n), zap.String("body", aws.ToString(msg.Body)))
		return q.deleteMessage(ctx, msg.ReceiptHandle)
	}

	var rec FailureRecord
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &rec); err != nil {
		log.Error("dropping unreadable failure record", zap.Error(err))
		return q.deleteMessage(ctx, msg.ReceiptHandle)
	}
	info := rec.BatchInfo

	records, err := q.readBatch(ctx, info)
	if err != nil {
		return spanErrorf(span, "read shard %s: %w", info.ShardID, err)
	}
	if len(records) == 0 {
		log.Warn("failed stream batch is no longer readable",
			zap.String("shardId", info.ShardID),
			zap.String("startSequenceNumber", info.StartSequenceNumber))
	}

	for _, r := range records {
		c, err := changelog.FromStreamRecord(r)
		if err != nil {
			log.Warn("skipping stream record", zap.String("eventId", aws.ToString(r.EventID)), zap.Error(err))
			continue
		}
		q.Projector.Project(c)
	}

	if err := q.deleteMessage(ctx, msg.ReceiptHandle); err != nil {
		return spanErrorf(span, "delete message: %w", err)
	}
	return nil
}

// readBatch reads the records from the batch's start sequence number through its end
// sequence number, or until BatchSize records have been read.
func (q *Replayer) readBatch(ctx context.Context, info BatchInfo) ([]streamtypes.Record, error) {
	it, err := q.Streams.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(info.StreamArn),
		ShardId:           aws.String(info.ShardID),
		ShardIteratorType: streamtypes.ShardIteratorTypeAtSequenceNumber,
		SequenceNumber:    aws.String(info.StartSequenceNumber),
	})
	if err != nil {
		return nil, fmt.Errorf("get shard iterator: %w", err)
	}

	var out []streamtypes.Record
	iter := it.ShardIterator
	for iter != nil && (info.BatchSize <= 0 || len(out) < info.BatchSize) {
		res, err := q.Streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{ShardIterator: iter})
		if err != nil {
			return nil, fmt.Errorf("get records: %w", err)
		}
		if len(res.Records) == 0 {
			break
		}
		for _, r := range res.Records {
			out = append(out, r)
			if r.Dynamodb != nil && aws.ToString(r.Dynamodb.SequenceNumber) == info.EndSequenceNumber {
				return out, nil
			}
			if info.BatchSize > 0 && len(out) == info.BatchSize {
				return out, nil
			}
		}
		iter = res.NextShardIterator
	}
	return out, nil
}

func (q *Replayer) deleteMessage(ctx context.Context, receiptHandle *string) error {
	_, err := q.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.QueueURL),
		ReceiptHandle: receiptHandle,
	})
	return err
}

func receiveCount(msg types.Message) int {
	n, _ := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	return n
}
