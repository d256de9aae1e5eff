package artifactstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// mockDDBClient evaluates the two condition expressions DynamoRefs issues.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDDBClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := in.Key["repo"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: m.items[key]}, nil
}

func (m *mockDDBClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := in.Item["repo"].(*types.AttributeValueMemberS).Value
	cur, exists := m.items[key]
	failed := &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}

	switch aws.ToString(in.ConditionExpression) {
	case "attribute_not_exists(head)":
		if exists {
			return nil, failed
		}
	case "head = :old":
		want := in.ExpressionAttributeValues[":old"].(*types.AttributeValueMemberS).Value
		if !exists || cur["head"].(*types.AttributeValueMemberS).Value != want {
			return nil, failed
		}
	}
	m.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoRefs_Advance(t *testing.T) {
	ctx := context.Background()
	refs := NewDynamoRefs(newMockDDBClient(), "ragdex-refs", "s3://bucket/ragdex")

	head, err := refs.Head(ctx)
	require.NoError(t, err)
	assert.Empty(t, head)

	require.NoError(t, refs.Advance(ctx, "", "c1"))
	require.NoError(t, refs.Advance(ctx, "c1", "c2"))

	err = refs.Advance(ctx, "c1", "c3")
	assert.True(t, errors.Is(err, domain.ErrConcurrentPublish))

	err = refs.Advance(ctx, "", "c4")
	assert.True(t, errors.Is(err, domain.ErrConcurrentPublish))

	head, err = refs.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c2", head)
}

func TestDynamoRefs_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	refs := NewDynamoRefs(client, "t", "repo")
	require.NoError(t, refs.Advance(ctx, "", "base"))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if refs.Advance(ctx, "base", string(rune('a'+i))) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestDynamoRefs_IsolatedRepos(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	a := NewDynamoRefs(client, "t", "repo-a")
	b := NewDynamoRefs(client, "t", "repo-b")

	require.NoError(t, a.Advance(ctx, "", "x"))
	head, err := b.Head(ctx)
	require.NoError(t, err)
	assert.Empty(t, head)
}
