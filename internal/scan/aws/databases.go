package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	memorydbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanRDS reports untagged RDS database instances.
func (s *Scanners) scanRDS(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.RDS(region)

	var marker *string
	instances, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[rdstypes.DBInstance], error) {
		output, err := client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
			MaxRecords: clampPage(limit, 20, 100),
			Marker:     marker,
		})
		if err != nil {
			return pager.Page[rdstypes.DBInstance]{}, fmt.Errorf("describe db instances: %w", err)
		}
		marker = output.Marker
		return pager.Page[rdstypes.DBInstance]{Items: output.DBInstances, HasMore: marker != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, instance := range instances {
		if !tagging.HasNoTags(instance) {
			continue
		}
		id := firstNonEmpty(aws.ToString(instance.DBInstanceIdentifier), aws.ToString(instance.DBInstanceArn))
		records = append(records, newRecord("rds", id, region))
	}
	return records, nil
}

// scanDynamoDB reports untagged DynamoDB tables. ListTables returns bare
// names, so each table costs a DescribeTable plus a ListTagsOfResource.
func (s *Scanners) scanDynamoDB(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.DynamoDB(region)

	var lastTable *string
	names, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[string], error) {
		output, err := client.ListTables(ctx, &dynamodb.ListTablesInput{
			Limit:                   clampPage(limit, 1, 100),
			ExclusiveStartTableName: lastTable,
		})
		if err != nil {
			return pager.Page[string]{}, fmt.Errorf("list tables: %w", err)
		}
		lastTable = output.LastEvaluatedTableName
		return pager.Page[string]{Items: output.TableNames, HasMore: lastTable != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, name := range names {
		desc, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
		if err != nil || desc.Table == nil {
			continue
		}
		tags, err := client.ListTagsOfResource(ctx, &dynamodb.ListTagsOfResourceInput{ResourceArn: desc.Table.TableArn})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		records = append(records, newRecord("dynamodb", name, region))
	}
	return records, nil
}

// scanElastiCache reports untagged ElastiCache clusters.
func (s *Scanners) scanElastiCache(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.ElastiCache(region)

	var marker *string
	clusters, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[ectypes.CacheCluster], error) {
		output, err := client.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
			MaxRecords: clampPage(limit, 20, 100),
			Marker:     marker,
		})
		if err != nil {
			return pager.Page[ectypes.CacheCluster]{}, fmt.Errorf("describe cache clusters: %w", err)
		}
		marker = output.Marker
		return pager.Page[ectypes.CacheCluster]{Items: output.CacheClusters, HasMore: marker != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, cluster := range clusters {
		if cluster.ARN == nil {
			continue
		}
		// Clusters mid-provisioning reject tag listing.
		tags, err := client.ListTagsForResource(ctx, &elasticache.ListTagsForResourceInput{ResourceName: cluster.ARN})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		records = append(records, newRecord("elasticache", aws.ToString(cluster.CacheClusterId), region))
	}
	return records, nil
}

// scanRedshift reports untagged Redshift clusters.
func (s *Scanners) scanRedshift(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.Redshift(region)

	var marker *string
	clusters, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[redshifttypes.Cluster], error) {
		output, err := client.DescribeClusters(ctx, &redshift.DescribeClustersInput{
			MaxRecords: clampPage(limit, 20, 100),
			Marker:     marker,
		})
		if err != nil {
			return pager.Page[redshifttypes.Cluster]{}, fmt.Errorf("describe clusters: %w", err)
		}
		marker = output.Marker
		return pager.Page[redshifttypes.Cluster]{Items: output.Clusters, HasMore: marker != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, cluster := range clusters {
		if !tagging.HasNoTags(cluster) {
			continue
		}
		records = append(records, newRecord("redshift", aws.ToString(cluster.ClusterIdentifier), region))
	}
	return records, nil
}

// scanMemoryDB reports untagged MemoryDB clusters. The service is absent
// in many regions, so this unit degrades to an empty result on any error
// instead of failing.
func (s *Scanners) scanMemoryDB(ctx context.Context, region string) ([]record.ScanRecord, error) {
	records, err := s.memoryDBRecords(ctx, region)
	if err != nil {
		log.Debug().Err(err).Str("region", region).Msg("memorydb scan degraded to empty")
		return nil, nil
	}
	return records, nil
}

func (s *Scanners) memoryDBRecords(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.MemoryDB(region)

	var nextToken *string
	clusters, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[memorydbtypes.Cluster], error) {
		output, err := client.DescribeClusters(ctx, &memorydb.DescribeClustersInput{
			MaxResults: clampPage(limit, 1, 100),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[memorydbtypes.Cluster]{}, fmt.Errorf("describe clusters: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[memorydbtypes.Cluster]{Items: output.Clusters, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, cluster := range clusters {
		if cluster.ARN == nil {
			continue
		}
		tags, err := client.ListTags(ctx, &memorydb.ListTagsInput{ResourceArn: cluster.ARN})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		records = append(records, newRecord("memorydb", aws.ToString(cluster.Name), region))
	}
	return records, nil
}
