package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	memorydbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ══════════════════════════════════════════════════════════════════════════════
// RDS Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockRDSClient struct {
	DescribeDBInstancesFunc func(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

func (m *mockRDSClient) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return m.DescribeDBInstancesFunc(ctx, params, optFns...)
}

func TestScanRDS(t *testing.T) {
	mock := &mockRDSClient{
		DescribeDBInstancesFunc: func(_ context.Context, _ *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
			return &rds.DescribeDBInstancesOutput{
				DBInstances: []rdstypes.DBInstance{
					{DBInstanceIdentifier: aws.String("orders-db")},
					{
						DBInstanceIdentifier: aws.String("billing-db"),
						TagList:              []rdstypes.Tag{{Key: aws.String("team"), Value: aws.String("finance")}},
					},
				},
			}, nil
		},
	}

	s := testScanners("rds", "us-east-1", mock)
	records, err := s.scanRDS(context.Background(), "us-east-1")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rds", records[0].Service)
	assert.Equal(t, "orders-db", records[0].ID)
	assert.Equal(t, "us-east-1", records[0].Region)
}

// ══════════════════════════════════════════════════════════════════════════════
// DynamoDB Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockDynamoDBClient struct {
	ListTablesFunc         func(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTableFunc      func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	ListTagsOfResourceFunc func(ctx context.Context, params *dynamodb.ListTagsOfResourceInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTagsOfResourceOutput, error)
}

func (m *mockDynamoDBClient) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	return m.ListTablesFunc(ctx, params, optFns...)
}

func (m *mockDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return m.DescribeTableFunc(ctx, params, optFns...)
}

func (m *mockDynamoDBClient) ListTagsOfResource(ctx context.Context, params *dynamodb.ListTagsOfResourceInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTagsOfResourceOutput, error) {
	return m.ListTagsOfResourceFunc(ctx, params, optFns...)
}

func TestScanDynamoDB(t *testing.T) {
	mock := &mockDynamoDBClient{
		ListTablesFunc: func(_ context.Context, _ *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
			return &dynamodb.ListTablesOutput{TableNames: []string{"events", "users", "ghost"}}, nil
		},
		DescribeTableFunc: func(_ context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			name := aws.ToString(params.TableName)
			if name == "ghost" {
				return nil, errors.New("table deleted mid-scan")
			}
			return &dynamodb.DescribeTableOutput{
				Table: &ddbtypes.TableDescription{TableArn: aws.String("arn:aws:dynamodb:eu-west-1:123:table/" + name)},
			}, nil
		},
		ListTagsOfResourceFunc: func(_ context.Context, params *dynamodb.ListTagsOfResourceInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTagsOfResourceOutput, error) {
			if aws.ToString(params.ResourceArn) == "arn:aws:dynamodb:eu-west-1:123:table/users" {
				return &dynamodb.ListTagsOfResourceOutput{Tags: []ddbtypes.Tag{{Key: aws.String("pii"), Value: aws.String("true")}}}, nil
			}
			return &dynamodb.ListTagsOfResourceOutput{}, nil
		},
	}

	s := testScanners("dynamodb", "eu-west-1", mock)
	records, err := s.scanDynamoDB(context.Background(), "eu-west-1")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dynamodb", records[0].Service)
	assert.Equal(t, "events", records[0].ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// ElastiCache Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockElastiCacheClient struct {
	DescribeCacheClustersFunc func(ctx context.Context, params *elasticache.DescribeCacheClustersInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error)
	ListTagsForResourceFunc   func(ctx context.Context, params *elasticache.ListTagsForResourceInput, optFns ...func(*elasticache.Options)) (*elasticache.ListTagsForResourceOutput, error)
}

func (m *mockElastiCacheClient) DescribeCacheClusters(ctx context.Context, params *elasticache.DescribeCacheClustersInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error) {
	return m.DescribeCacheClustersFunc(ctx, params, optFns...)
}

func (m *mockElastiCacheClient) ListTagsForResource(ctx context.Context, params *elasticache.ListTagsForResourceInput, optFns ...func(*elasticache.Options)) (*elasticache.ListTagsForResourceOutput, error) {
	return m.ListTagsForResourceFunc(ctx, params, optFns...)
}

func TestScanElastiCache(t *testing.T) {
	mock := &mockElastiCacheClient{
		DescribeCacheClustersFunc: func(_ context.Context, _ *elasticache.DescribeCacheClustersInput, _ ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error) {
			return &elasticache.DescribeCacheClustersOutput{
				CacheClusters: []ectypes.CacheCluster{
					{CacheClusterId: aws.String("sessions"), ARN: aws.String("arn:cache:sessions")},
					{CacheClusterId: aws.String("feeds"), ARN: aws.String("arn:cache:feeds")},
					{CacheClusterId: aws.String("provisioning")},
				},
			}, nil
		},
		ListTagsForResourceFunc: func(_ context.Context, params *elasticache.ListTagsForResourceInput, _ ...func(*elasticache.Options)) (*elasticache.ListTagsForResourceOutput, error) {
			if aws.ToString(params.ResourceName) == "arn:cache:feeds" {
				return &elasticache.ListTagsForResourceOutput{TagList: []ectypes.Tag{{Key: aws.String("env"), Value: aws.String("prod")}}}, nil
			}
			return &elasticache.ListTagsForResourceOutput{}, nil
		},
	}

	s := testScanners("elasticache", "us-west-2", mock)
	records, err := s.scanElastiCache(context.Background(), "us-west-2")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "elasticache", records[0].Service)
	assert.Equal(t, "sessions", records[0].ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// Redshift Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockRedshiftClient struct {
	DescribeClustersFunc func(ctx context.Context, params *redshift.DescribeClustersInput, optFns ...func(*redshift.Options)) (*redshift.DescribeClustersOutput, error)
}

func (m *mockRedshiftClient) DescribeClusters(ctx context.Context, params *redshift.DescribeClustersInput, optFns ...func(*redshift.Options)) (*redshift.DescribeClustersOutput, error) {
	return m.DescribeClustersFunc(ctx, params, optFns...)
}

func TestScanRedshift(t *testing.T) {
	mock := &mockRedshiftClient{
		DescribeClustersFunc: func(_ context.Context, _ *redshift.DescribeClustersInput, _ ...func(*redshift.Options)) (*redshift.DescribeClustersOutput, error) {
			return &redshift.DescribeClustersOutput{
				Clusters: []redshifttypes.Cluster{
					{ClusterIdentifier: aws.String("analytics")},
					{
						ClusterIdentifier: aws.String("warehouse"),
						Tags:              []redshifttypes.Tag{{Key: aws.String("team"), Value: aws.String("data")}},
					},
				},
			}, nil
		},
	}

	s := testScanners("redshift", "us-east-1", mock)
	records, err := s.scanRedshift(context.Background(), "us-east-1")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "redshift", records[0].Service)
	assert.Equal(t, "analytics", records[0].ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// MemoryDB Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockMemoryDBClient struct {
	DescribeClustersFunc func(ctx context.Context, params *memorydb.DescribeClustersInput, optFns ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error)
	ListTagsFunc         func(ctx context.Context, params *memorydb.ListTagsInput, optFns ...func(*memorydb.Options)) (*memorydb.ListTagsOutput, error)
}

func (m *mockMemoryDBClient) DescribeClusters(ctx context.Context, params *memorydb.DescribeClustersInput, optFns ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error) {
	return m.DescribeClustersFunc(ctx, params, optFns...)
}

func (m *mockMemoryDBClient) ListTags(ctx context.Context, params *memorydb.ListTagsInput, optFns ...func(*memorydb.Options)) (*memorydb.ListTagsOutput, error) {
	return m.ListTagsFunc(ctx, params, optFns...)
}

func TestScanMemoryDB(t *testing.T) {
	mock := &mockMemoryDBClient{
		DescribeClustersFunc: func(_ context.Context, _ *memorydb.DescribeClustersInput, _ ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error) {
			return &memorydb.DescribeClustersOutput{
				Clusters: []memorydbtypes.Cluster{
					{Name: aws.String("ranking"), ARN: aws.String("arn:memorydb:ranking")},
				},
			}, nil
		},
		ListTagsFunc: func(_ context.Context, _ *memorydb.ListTagsInput, _ ...func(*memorydb.Options)) (*memorydb.ListTagsOutput, error) {
			return &memorydb.ListTagsOutput{}, nil
		},
	}

	s := testScanners("memorydb", "us-east-1", mock)
	records, err := s.scanMemoryDB(context.Background(), "us-east-1")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "memorydb", records[0].Service)
	assert.Equal(t, "ranking", records[0].ID)
}

func TestScanMemoryDB_DegradesToEmpty(t *testing.T) {
	mock := &mockMemoryDBClient{
		DescribeClustersFunc: func(_ context.Context, _ *memorydb.DescribeClustersInput, _ ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error) {
			return nil, errors.New("no such service in this region")
		},
	}

	s := testScanners("memorydb", "eu-south-2", mock)
	records, err := s.scanMemoryDB(context.Background(), "eu-south-2")

	require.NoError(t, err)
	assert.Empty(t, records)
}
