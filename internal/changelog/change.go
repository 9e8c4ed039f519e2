// Package changelog turns table change stream records into one-line audit entries.
package changelog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// Action is the kind of row change a record describes.
type Action string

const (
	Insert Action = "INSERT"
	Modify Action = "MODIFY"
	Remove Action = "REMOVE"
)

// ErrUnknownEvent is returned for records whose event name is not a row change.
var ErrUnknownEvent = errors.New("unknown stream event")

func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case Insert, Modify, Remove:
		return a, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownEvent, name)
}

// Change is a stream record with its images decoded into plain values. Numbers decode to
// json.Number. An image the stream did not carry is nil.
type Change struct {
	EventID        string
	Action         Action
	SequenceNumber string
	Old            map[string]any
	New            map[string]any
}

// FromLambdaRecord decodes a record delivered to a stream-triggered function.
func FromLambdaRecord(r events.DynamoDBEventRecord) (Change, error) {
	action, err := ParseAction(r.EventName)
	if err != nil {
		return Change{}, err
	}

	c := Change{
		EventID:        r.EventID,
		Action:         action,
		SequenceNumber: r.Change.SequenceNumber,
	}
	if c.Old, err = fromLambdaImage(r.Change.OldImage); err != nil {
		return Change{}, fmt.Errorf("old image of %s: %w", r.EventID, err)
	}
	if c.New, err = fromLambdaImage(r.Change.NewImage); err != nil {
		return Change{}, fmt.Errorf("new image of %s: %w", r.EventID, err)
	}
	return c, nil
}

// FromStreamRecord decodes a record read back from the streams API.
func FromStreamRecord(r types.Record) (Change, error) {
	action, err := ParseAction(string(r.EventName))
	if err != nil {
		return Change{}, err
	}

	c := Change{
		EventID: aws.ToString(r.EventID),
		Action:  action,
	}
	if r.Dynamodb == nil {
		return c, nil
	}
	c.SequenceNumber = aws.ToString(r.Dynamodb.SequenceNumber)
	if c.Old, err = fromStreamImage(r.Dynamodb.OldImage); err != nil {
		return Change{}, fmt.Errorf("old image of %s: %w", c.EventID, err)
	}
	if c.New, err = fromStreamImage(r.Dynamodb.NewImage); err != nil {
		return Change{}, fmt.Errorf("new image of %s: %w", c.EventID, err)
	}
	return c, nil
}

func fromLambdaImage(img map[string]events.DynamoDBAttributeValue) (map[string]any, error) {
	if img == nil {
		return nil, nil
	}
	out := make(map[string]any, len(img))
	for name, av := range img {
		v, err := fromLambdaValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func fromLambdaValue(av events.DynamoDBAttributeValue) (any, error) {
	switch av.DataType() {
	case events.DataTypeString:
		return av.String(), nil
	case events.DataTypeNumber:
		return number(av.Number())
	case events.DataTypeBoolean:
		return av.Boolean(), nil
	case events.DataTypeNull:
		return nil, nil
	case events.DataTypeBinary:
		return av.Binary(), nil
	case events.DataTypeStringSet:
		return av.StringSet(), nil
	case events.DataTypeNumberSet:
		return numbers(av.NumberSet())
	case events.DataTypeBinarySet:
		return av.BinarySet(), nil
	case events.DataTypeList:
		list := av.List()
		out := make([]any, 0, len(list))
		for _, item := range list {
			v, err := fromLambdaValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case events.DataTypeMap:
		m, err := fromLambdaImage(av.Map())
		if m == nil && err == nil {
			m = map[string]any{}
		}
		return m, err
	default:
		return nil, fmt.Errorf("unsupported attribute type %d", av.DataType())
	}
}

func fromStreamImage(img map[string]types.AttributeValue) (map[string]any, error) {
	if img == nil {
		return nil, nil
	}
	out := make(map[string]any, len(img))
	for name, av := range img {
		v, err := fromStreamValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func fromStreamValue(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return number(v.Value)
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberSS:
		return v.Value, nil
	case *types.AttributeValueMemberNS:
		return numbers(v.Value)
	case *types.AttributeValueMemberBS:
		return v.Value, nil
	case *types.AttributeValueMemberL:
		out := make([]any, 0, len(v.Value))
		for _, item := range v.Value {
			x, err := fromStreamValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, x)
		}
		return out, nil
	case *types.AttributeValueMemberM:
		m, err := fromStreamImage(v.Value)
		if m == nil && err == nil {
			m = map[string]any{}
		}
		return m, err
	case *types.UnknownUnionMember:
		return nil, fmt.Errorf("unknown attribute type %q", v.Tag)
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", av)
	}
}

func number(s string) (json.Number, error) {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("invalid number %q", s)
	}
	return json.Number(s), nil
}

func numbers(ss []string) ([]json.Number, error) {
	out := make([]json.Number, 0, len(ss))
	for _, s := range ss {
		n, err := number(s)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
