// Package storetest provides an in-memory stand-in for the DynamoDB client.
package storetest

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	equalsExpr     = regexp.MustCompile(`(#\w+)\s*=\s*(:\w+)`)
	beginsWithExpr = regexp.MustCompile(`begins_with\s*\(\s*(#\w+)\s*,\s*(:\w+)\s*\)`)
)

type item = map[string]types.AttributeValue

// Table is a single table keyed by string pk and sk. It understands the equality key
// conditions, begins_with filters and attribute_not_exists conditions the store emits.
type Table struct {
	mu    sync.Mutex
	items map[[2]string]item

	// Err, when set, is returned by every operation.
	Err error
	// NoScanResult makes Scan return a page with nil Items.
	NoScanResult bool
}

func NewTable() *Table {
	return &Table{items: make(map[[2]string]item)}
}

// Seed stores v, which must carry pk and sk attributes, without conditions.
func (t *Table) Seed(v any) error {
	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[keyOf(av)] = av
	return nil
}

// Len returns the number of stored rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

func (t *Table) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: t.items[keyOf(in.Key)]}, nil
}

func (t *Table) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	k := keyOf(in.Item)
	if _, exists := t.items[k]; exists && strings.Contains(aws.ToString(in.ConditionExpression), "attribute_not_exists") {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	t.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (t *Table) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	k := keyOf(in.Key)
	old := t.items[k]
	delete(t.items, k)

	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (t *Table) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	eq := equalities(aws.ToString(in.KeyConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	matched := t.match(func(it item) bool { return matchesAll(it, eq) })
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return &dynamodb.QueryOutput{Items: matched, Count: int32(len(matched))}, nil
}

func (t *Table) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	if t.NoScanResult {
		return &dynamodb.ScanOutput{}, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	filter := aws.ToString(in.FilterExpression)
	eq := equalities(filter, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	prefixes := map[string]string{}
	for _, m := range beginsWithExpr.FindAllStringSubmatch(filter, -1) {
		prefixes[in.ExpressionAttributeNames[m[1]]] = stringValue(in.ExpressionAttributeValues[m[2]])
	}

	matched := t.match(func(it item) bool {
		for name, prefix := range prefixes {
			if !strings.HasPrefix(stringValue(it[name]), prefix) {
				return false
			}
		}
		return matchesAll(it, eq)
	})
	return &dynamodb.ScanOutput{Items: matched, Count: int32(len(matched))}, nil
}

// match returns matching rows ordered by pk then sk. The result is never nil.
func (t *Table) match(keep func(item) bool) []item {
	ks := make([][2]string, 0, len(t.items))
	for k := range t.items {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool {
		if ks[i][0] != ks[j][0] {
			return ks[i][0] < ks[j][0]
		}
		return ks[i][1] < ks[j][1]
	})

	out := []item{}
	for _, k := range ks {
		if it := t.items[k]; keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func equalities(expr string, names map[string]string, values map[string]types.AttributeValue) map[string]string {
	eq := map[string]string{}
	for _, m := range equalsExpr.FindAllStringSubmatch(expr, -1) {
		eq[names[m[1]]] = stringValue(values[m[2]])
	}
	return eq
}

func matchesAll(it item, eq map[string]string) bool {
	for name, want := range eq {
		if stringValue(it[name]) != want {
			return false
		}
	}
	return true
}

func keyOf(av item) [2]string {
	return [2]string{stringValue(av["pk"]), stringValue(av["sk"])}
}

func stringValue(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}
