package changelog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func str(s string) events.DynamoDBAttributeValue { return events.NewStringAttribute(s) }

func record(name, seq string, old, new map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   "evt-" + seq,
		EventName: name,
		Change: events.DynamoDBStreamRecord{
			SequenceNumber: seq,
			OldImage:       old,
			NewImage:       new,
		},
	}
}

func TestFormat(t *testing.T) {
	tests := map[string]struct {
		change Change
		want   string
	}{
		"insert movie": {
			change: Change{Action: Insert, New: map[string]any{
				"pk": "m7", "sk": "xxxx", "title": "Heat", "release_date": "1995-12-15", "year": json.Number("1995"),
			}},
			want: "POST + m7 | xxxx | Heat | 1995-12-15 | 1995",
		},
		"remove movie": {
			change: Change{Action: Remove, Old: map[string]any{"pk": "m3", "sk": "xxxx", "title": "Z"}},
			want:   "DELETE m3 | xxxx | Z",
		},
		"modify award": {
			change: Change{
				Action: Modify,
				Old:    map[string]any{"pk": "w1", "sk": "oscar", "category": "Best Picture"},
				New:    map[string]any{"pk": "w1", "sk": "oscar", "category": "Best Film"},
			},
			want: "MODIFY w1 | oscar | Best Picture -> w1 | oscar | Best Film",
		},
		"missing image": {
			change: Change{Action: Remove},
			want:   "DELETE <undefined>",
		},
		"empty values skipped": {
			change: Change{Action: Insert, New: map[string]any{"pk": "m1", "title": "", "year": json.Number("0")}},
			want:   "POST + m1",
		},
		"no summary fields": {
			change: Change{Action: Insert, New: map[string]any{"actorName": "A", "actorId": json.Number("9")}},
			want:   `POST + {"actorId":9,"actorName":"A"}`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Format(tc.change))
		})
	}
}

func TestFromLambdaRecord(t *testing.T) {
	r := record("MODIFY", "100",
		map[string]events.DynamoDBAttributeValue{
			"pk":        str("c1"),
			"actorId":   events.NewNumberAttribute("9"),
			"lead":      events.NewBooleanAttribute(true),
			"genre_ids": events.NewListAttribute([]events.DynamoDBAttributeValue{events.NewNumberAttribute("18")}),
		},
		map[string]events.DynamoDBAttributeValue{
			"pk":   str("c1"),
			"meta": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{"x": events.NewNullAttribute()}),
		},
	)

	c, err := FromLambdaRecord(r)
	require.NoError(t, err)
	assert.Equal(t, Modify, c.Action)
	assert.Equal(t, "evt-100", c.EventID)
	assert.Equal(t, "100", c.SequenceNumber)
	assert.Equal(t, map[string]any{
		"pk":        "c1",
		"actorId":   json.Number("9"),
		"lead":      true,
		"genre_ids": []any{json.Number("18")},
	}, c.Old)
	assert.Equal(t, map[string]any{"pk": "c1", "meta": map[string]any{"x": nil}}, c.New)

	_, err = FromLambdaRecord(record("TTL", "1", nil, nil))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = FromLambdaRecord(record("INSERT", "1", nil, map[string]events.DynamoDBAttributeValue{
		"year": events.NewNumberAttribute("nineteen"),
	}))
	assert.ErrorContains(t, err, "invalid number")
}

func TestFromStreamRecord(t *testing.T) {
	r := types.Record{
		EventID:   aws.String("e1"),
		EventName: types.OperationTypeRemove,
		Dynamodb: &types.StreamRecord{
			SequenceNumber: aws.String("42"),
			OldImage: map[string]types.AttributeValue{
				"pk":    &types.AttributeValueMemberS{Value: "m3"},
				"sk":    &types.AttributeValueMemberS{Value: "xxxx"},
				"title": &types.AttributeValueMemberS{Value: "Z"},
				"tags":  &types.AttributeValueMemberSS{Value: []string{"a"}},
			},
		},
	}

	c, err := FromStreamRecord(r)
	require.NoError(t, err)
	assert.Equal(t, "42", c.SequenceNumber)
	assert.Nil(t, c.New)
	assert.Equal(t, "DELETE m3 | xxxx | Z", Format(c))

	r.Dynamodb.OldImage["odd"] = &types.UnknownUnionMember{Tag: "X"}
	_, err = FromStreamRecord(r)
	assert.Error(t, err)
}

func TestHandleStream(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewProjector(zap.New(core), nil)

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, map[string]events.DynamoDBAttributeValue{"pk": str("m7"), "sk": str("xxxx"), "title": str("Heat")}),
		record("REMOVE", "2", map[string]events.DynamoDBAttributeValue{"pk": str("m3"), "sk": str("xxxx"), "title": str("Z")}, nil),
		record("UNKNOWN", "3", nil, nil),
		record("MODIFY", "4", map[string]events.DynamoDBAttributeValue{"pk": str("m1")}, map[string]events.DynamoDBAttributeValue{"pk": str("m1"), "title": str("New")}),
	}}

	res, err := p.HandleStream(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, res.BatchItemFailures)

	var lines []string
	for _, e := range logs.FilterLevelExact(zapcore.InfoLevel).All() {
		lines = append(lines, e.Message)
	}
	assert.Equal(t, []string{
		"POST + m7 | xxxx | Heat",
		"DELETE m3 | xxxx | Z",
		"MODIFY m1 -> m1 | New",
	}, lines)
	assert.Equal(t, 1, logs.FilterMessage("skipping stream record").Len())
}

func TestHandleStreamStopsAtFirstFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewProjector(zap.New(core), nil)

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, map[string]events.DynamoDBAttributeValue{"pk": str("m1")}),
		record("INSERT", "2", nil, map[string]events.DynamoDBAttributeValue{"year": events.NewNumberAttribute("x")}),
		record("INSERT", "3", nil, map[string]events.DynamoDBAttributeValue{"pk": str("m3")}),
	}}

	res, err := p.HandleStream(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, res.BatchItemFailures, 1)
	assert.Equal(t, "2", res.BatchItemFailures[0].ItemIdentifier)

	assert.Equal(t, 1, logs.FilterMessage("POST + m1").Len())
	assert.Equal(t, 0, logs.FilterMessage("POST + m3").Len(), "records after a failure wait for redelivery")
}
