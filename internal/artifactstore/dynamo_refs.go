package artifactstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// DDBClient is the subset of the DynamoDB API used for refs.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoRefs keeps HEAD in a DynamoDB item and moves it with a conditional
// write, which gives the compare-and-swap S3 lacks.
//
// Table schema: partition key "repo" (S). Create with:
//
//	aws dynamodb create-table \
//	  --table-name ragdex-refs \
//	  --attribute-definitions AttributeName=repo,AttributeType=S \
//	  --key-schema AttributeName=repo,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoRefs struct {
	client DDBClient
	table  string
	repo   string
}

// NewDynamoRefs creates refs for repo (usually "s3://bucket/prefix") in table.
func NewDynamoRefs(client DDBClient, table, repo string) *DynamoRefs {
	return &DynamoRefs{client: client, table: table, repo: repo}
}

// Head reads the current commit id.
func (d *DynamoRefs) Head(ctx context.Context) (string, error) {
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{"repo": &types.AttributeValueMemberS{Value: d.repo}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("dynamodb get HEAD: %w", err)
	}
	if resp.Item == nil {
		return "", nil
	}
	head, ok := resp.Item["head"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("invalid head attribute in DynamoDB")
	}
	return head.Value, nil
}

// Advance conditionally replaces HEAD.
func (d *DynamoRefs) Advance(ctx context.Context, old, next string) error {
	in := &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			"repo": &types.AttributeValueMemberS{Value: d.repo},
			"head": &types.AttributeValueMemberS{Value: next},
		},
	}
	if old == "" {
		in.ConditionExpression = aws.String("attribute_not_exists(head)")
	} else {
		in.ConditionExpression = aws.String("head = :old")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":old": &types.AttributeValueMemberS{Value: old},
		}
	}

	_, err := d.client.PutItem(ctx, in)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("HEAD moved from %q: %w", old, domain.ErrConcurrentPublish)
		}
		return fmt.Errorf("dynamodb put HEAD: %w", err)
	}
	return nil
}
