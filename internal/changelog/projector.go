package changelog

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dannyrandall/moviecatalog/internal/metrics"
	"go.uber.org/zap"
)

// Projector writes one audit line per change to its logger.
type Projector struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewProjector(logger *zap.Logger, m *metrics.Collector) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{logger: logger, metrics: m}
}

// Project logs c and returns the audit line.
func (p *Projector) Project(c Change) string {
	line := Format(c)
	p.logger.Info(line,
		zap.String("action", string(c.Action)),
		zap.String("eventId", c.EventID),
		zap.String("sequenceNumber", c.SequenceNumber))
	p.metrics.ObserveChange(string(c.Action))
	return line
}

// HandleStream projects a batch of stream records in order. Records that are not row changes
// are skipped. Processing stops at the first record that cannot be decoded and its sequence
// number is reported as the batch's failure, so it and every later record are redelivered.
func (p *Projector) HandleStream(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var res events.DynamoDBEventResponse
	for _, r := range ev.Records {
		c, err := FromLambdaRecord(r)
		if errors.Is(err, ErrUnknownEvent) {
			p.logger.Warn("skipping stream record",
				zap.String("eventName", r.EventName),
				zap.String("eventId", r.EventID))
			continue
		}
		if err != nil {
			p.logger.Error("cannot decode stream record",
				zap.String("eventId", r.EventID),
				zap.String("sequenceNumber", r.Change.SequenceNumber),
				zap.Error(err))
			res.BatchItemFailures = append(res.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: r.Change.SequenceNumber,
			})
			return res, nil
		}
		p.Project(c)
	}
	return res, nil
}
