package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/mediacache/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDDBClient struct {
	mock.Mock
}

func (m *MockDDBClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.UpdateItemOutput), args.Error(1)
}

func TestAllocator_Next(t *testing.T) {
	m := new(MockDDBClient)
	a := NewAllocator(m, "counters", "")

	m.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		pk, ok := in.Key[partitionKey].(*types.AttributeValueMemberS)
		return *in.TableName == "counters" && ok && pk.Value == DefaultCounterKey &&
			in.ReturnValues == types.ReturnValueUpdatedNew
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{
			counterColumn: &types.AttributeValueMemberN{Value: "12"},
		},
	}, nil).Once()

	id, err := a.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blobstore.ID(12), id)
	m.AssertExpectations(t)
}

func TestAllocator_Errors(t *testing.T) {
	t.Run("RequestFailed", func(t *testing.T) {
		m := new(MockDDBClient)
		boom := errors.New("throttled")
		m.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, boom).Once()

		_, err := NewAllocator(m, "counters", "k").Next(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("MissingAttribute", func(t *testing.T) {
		m := new(MockDDBClient)
		m.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

		_, err := NewAllocator(m, "counters", "k").Next(context.Background())
		assert.Error(t, err)
	})

	t.Run("BadNumber", func(t *testing.T) {
		m := new(MockDDBClient)
		m.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{
			Attributes: map[string]types.AttributeValue{
				counterColumn: &types.AttributeValueMemberN{Value: "-3"},
			},
		}, nil).Once()

		_, err := NewAllocator(m, "counters", "k").Next(context.Background())
		assert.Error(t, err)
	})
}
