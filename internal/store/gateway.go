// Package store reads and writes catalogue rows in the single DynamoDB table.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dannyrandall/moviecatalog/internal/apperrors"
	"github.com/dannyrandall/moviecatalog/internal/keys"
	"github.com/dannyrandall/moviecatalog/internal/metrics"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// DynamoDB is the subset of the DynamoDB client the gateway uses.
type DynamoDB interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Gateway performs keyed operations against one table. Conditional writes are its only
// concurrency control.
type Gateway struct {
	db      DynamoDB
	table   string
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewGateway(db DynamoDB, table string, logger *zap.Logger, m *metrics.Collector) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		db:      db,
		table:   table,
		timeout: defaultTimeout,
		logger:  logger,
		metrics: m,
	}
}

// CreateIfAbsent writes item under key unless a row with that key already exists, in which
// case it returns a Conflict and leaves the stored row untouched.
func (g *Gateway) CreateIfAbsent(ctx context.Context, key keys.Key, item any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	defer g.observe("create", time.Now(), &err)

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Upstream(err, "marshal item %s", key)
	}
	for name, v := range key.Item() {
		av[name] = v
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(keys.AttrPK))).
		Build()
	if err != nil {
		return apperrors.Upstream(err, "build condition")
	}

	_, err = g.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(g.table),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return apperrors.Conflict("item %s already exists", key)
		}
		return apperrors.Upstream(err, "put item %s", key)
	}
	return nil
}

// Get loads the row stored under key into out.
func (g *Gateway) Get(ctx context.Context, key keys.Key, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	defer g.observe("get", time.Now(), &err)

	res, err := g.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(g.table),
		Key:       key.Item(),
	})
	switch {
	case err != nil:
		return apperrors.Upstream(err, "get item %s", key)
	case len(res.Item) == 0:
		return apperrors.NotFound("no item %s", key)
	}

	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return apperrors.Upstream(err, "unmarshal item %s", key)
	}
	return nil
}

// Query loads every row of a partition, optionally narrowed to one sort key, in ascending
// sort key order. An empty partition is not an error.
func (g *Gateway) Query(ctx context.Context, r keys.Range, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	defer g.observe("query", time.Now(), &err)

	cond := expression.KeyEqual(expression.Key(keys.AttrPK), expression.Value(r.PK))
	if r.HasSK() {
		cond = expression.KeyAnd(cond, expression.KeyEqual(expression.Key(keys.AttrSK), expression.Value(r.SK)))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(cond).Build()
	if err != nil {
		return apperrors.Upstream(err, "build key condition")
	}

	p := dynamodb.NewQueryPaginator(g.db, &dynamodb.QueryInput{
		TableName:                 aws.String(g.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	})

	items := []map[string]types.AttributeValue{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return apperrors.Upstream(err, "query partition %s", r.PK)
		}
		items = append(items, page.Items...)
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return apperrors.Upstream(err, "unmarshal partition %s", r.PK)
	}
	return nil
}

// Delete removes the row stored under key and loads its prior value into out, which may be
// nil. Deleting a missing row returns NotFound.
func (g *Gateway) Delete(ctx context.Context, key keys.Key, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	defer g.observe("delete", time.Now(), &err)

	res, err := g.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(g.table),
		Key:          key.Item(),
		ReturnValues: types.ReturnValueAllOld,
	})
	switch {
	case err != nil:
		return apperrors.Upstream(err, "delete item %s", key)
	case len(res.Attributes) == 0:
		return apperrors.NotFound("no item %s", key)
	}

	if out == nil {
		return nil
	}
	if err := attributevalue.UnmarshalMap(res.Attributes, out); err != nil {
		return apperrors.Upstream(err, "unmarshal deleted item %s", key)
	}
	return nil
}

// ScanPrefix reads every row whose pk starts with prefix and whose sk equals sk. This walks
// the whole table and is far more expensive than the keyed operations.
//
// When the table returns no result set at all the scan reports NotFound, while a present but
// empty result set is a success with no rows.
func (g *Gateway) ScanPrefix(ctx context.Context, prefix, sk string, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	defer g.observe("scan", time.Now(), &err)

	filter := expression.And(
		expression.BeginsWith(expression.Name(keys.AttrPK), prefix),
		expression.Equal(expression.Name(keys.AttrSK), expression.Value(sk)),
	)
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return apperrors.Upstream(err, "build filter")
	}

	p := dynamodb.NewScanPaginator(g.db, &dynamodb.ScanInput{
		TableName:                 aws.String(g.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var resultSet bool
	items := []map[string]types.AttributeValue{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return apperrors.Upstream(err, "scan prefix %q", prefix)
		}
		if page.Items != nil {
			resultSet = true
		}
		items = append(items, page.Items...)
	}
	if !resultSet {
		return apperrors.NotFound("scan prefix %q returned no result set", prefix)
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return apperrors.Upstream(err, "unmarshal scan prefix %q", prefix)
	}
	return nil
}

func (g *Gateway) observe(op string, start time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.KindConflict:
			outcome = "conflict"
		case apperrors.KindNotFound:
			outcome = "not_found"
		default:
			outcome = "error"
			g.logger.Error("table operation failed", zap.String("operation", op), zap.Error(err))
		}
	}
	g.metrics.ObserveStore(op, outcome, time.Since(start))
}
