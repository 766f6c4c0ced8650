package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	rgta "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	rgtatypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/leima/internal/pager"
)

// ══════════════════════════════════════════════════════════════════════════════
// Tagging API Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockTaggingClient struct {
	GetResourcesFunc func(ctx context.Context, params *rgta.GetResourcesInput, optFns ...func(*rgta.Options)) (*rgta.GetResourcesOutput, error)
}

func (m *mockTaggingClient) GetResources(ctx context.Context, params *rgta.GetResourcesInput, optFns ...func(*rgta.Options)) (*rgta.GetResourcesOutput, error) {
	return m.GetResourcesFunc(ctx, params, optFns...)
}

func TestScanTaggingAPI(t *testing.T) {
	calls := 0
	mock := &mockTaggingClient{
		GetResourcesFunc: func(_ context.Context, params *rgta.GetResourcesInput, _ ...func(*rgta.Options)) (*rgta.GetResourcesOutput, error) {
			calls++
			assert.Equal(t, longTailTypes, params.ResourceTypeFilters)

			switch calls {
			case 1:
				assert.Nil(t, params.PaginationToken)
				return &rgta.GetResourcesOutput{
					ResourceTagMappingList: []rgtatypes.ResourceTagMapping{
						{ResourceARN: aws.String("arn:aws:kinesis:us-east-1:123456789012:stream/events")},
						{
							ResourceARN: aws.String("arn:aws:secretsmanager:us-east-1:123456789012:secret:prod/db-AbCdEf"),
							Tags:        []rgtatypes.Tag{{Key: aws.String("env"), Value: aws.String("prod")}},
						},
						{ResourceARN: aws.String("")},
					},
					PaginationToken: aws.String("page-2"),
				}, nil
			case 2:
				assert.Equal(t, "page-2", aws.ToString(params.PaginationToken))
				return &rgta.GetResourcesOutput{
					ResourceTagMappingList: []rgtatypes.ResourceTagMapping{
						{ResourceARN: aws.String("arn:aws:states:us-east-1:123456789012:stateMachine:order-flow")},
					},
					// End of results is an empty token, not a nil one.
					PaginationToken: aws.String(""),
				}, nil
			}
			t.Fatalf("unexpected GetResources call %d", calls)
			return nil, nil
		},
	}

	// Page size matches the first page so the pager keeps going until the
	// empty continuation token.
	f := &Factory{cache: map[clientKey]interface{}{
		{service: "resourcegroupstaggingapi", region: "us-east-1"}: mock,
	}}
	s := NewScanners(f, pager.Options{PageSize: 3})
	records, err := s.scanTaggingAPI(context.Background(), "us-east-1")

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, records, 2)
	assert.Equal(t, "kinesis", records[0].Service)
	assert.Equal(t, "events", records[0].ID)
	assert.Equal(t, "states", records[1].Service)
	assert.Equal(t, "order-flow", records[1].ID)
}

func TestScanTaggingAPI_ListFailure(t *testing.T) {
	mock := &mockTaggingClient{
		GetResourcesFunc: func(_ context.Context, _ *rgta.GetResourcesInput, _ ...func(*rgta.Options)) (*rgta.GetResourcesOutput, error) {
			return nil, errors.New("not authorized")
		},
	}

	s := testScanners("resourcegroupstaggingapi", "us-east-1", mock)
	records, err := s.scanTaggingAPI(context.Background(), "us-east-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "get resources")
	assert.Empty(t, records)
}
