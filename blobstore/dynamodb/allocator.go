// Package dynamodb provides a blob ID allocator backed by a DynamoDB item.
//
// The counter lives in a single item keyed by a string partition key:
//
//	aws dynamodb create-table \
//	  --table-name mediacache-counters \
//	  --attribute-definitions AttributeName=pk,AttributeType=S \
//	  --key-schema AttributeName=pk,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/mediacache/blobstore"
)

const (
	// DefaultCounterKey is the partition key value of the counter item.
	DefaultCounterKey = "blob_ids"

	partitionKey  = "pk"
	counterColumn = "next_id"
)

// Client is the subset of the DynamoDB client the allocator needs.
type Client interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Allocator implements blobstore.IDAllocator with an atomic ADD update.
type Allocator struct {
	client     Client
	table      string
	counterKey string
}

// NewAllocator creates an allocator on table. counterKey defaults to DefaultCounterKey.
func NewAllocator(client Client, table, counterKey string) *Allocator {
	if counterKey == "" {
		counterKey = DefaultCounterKey
	}
	return &Allocator{client: client, table: table, counterKey: counterKey}
}

// Next atomically increments the counter and returns the new value.
func (a *Allocator) Next(ctx context.Context) (blobstore.ID, error) {
	out, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(a.table),
		Key: map[string]types.AttributeValue{
			partitionKey: &types.AttributeValueMemberS{Value: a.counterKey},
		},
		UpdateExpression: aws.String("ADD " + counterColumn + " :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment blob id counter: %w", err)
	}

	attr, ok := out.Attributes[counterColumn].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("invalid next_id attribute in DynamoDB")
	}
	n, err := strconv.ParseUint(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse next_id: %w", err)
	}
	return blobstore.ID(n), nil
}

// Close is a no-op; the client is owned by the caller.
func (a *Allocator) Close() error { return nil }
