package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanEC2 reports untagged EC2 instances.
func (s *Scanners) scanEC2(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.EC2(region)

	var nextToken *string
	instances, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[ec2types.Instance], error) {
		output, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			MaxResults: clampPage(limit, 5, 1000),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[ec2types.Instance]{}, fmt.Errorf("describe instances: %w", err)
		}
		nextToken = output.NextToken

		var items []ec2types.Instance
		for _, reservation := range output.Reservations {
			items = append(items, reservation.Instances...)
		}
		return pager.Page[ec2types.Instance]{Items: items, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, instance := range instances {
		if !tagging.HasNoTags(instance) {
			continue
		}
		records = append(records, newRecord("ec2", aws.ToString(instance.InstanceId), region))
	}
	return records, nil
}

// scanASG reports untagged Auto Scaling groups.
func (s *Scanners) scanASG(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.AutoScaling(region)

	var nextToken *string
	groups, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[asgtypes.AutoScalingGroup], error) {
		output, err := client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			MaxRecords: clampPage(limit, 1, 100),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[asgtypes.AutoScalingGroup]{}, fmt.Errorf("describe auto scaling groups: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[asgtypes.AutoScalingGroup]{Items: output.AutoScalingGroups, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, group := range groups {
		if !tagging.HasNoTags(group) {
			continue
		}
		id := firstNonEmpty(aws.ToString(group.AutoScalingGroupName), aws.ToString(group.AutoScalingGroupARN))
		records = append(records, newRecord("asg", id, region))
	}
	return records, nil
}

// scanLambda reports untagged Lambda functions. ListFunctions omits tag
// data, so each function costs one ListTags call.
func (s *Scanners) scanLambda(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.Lambda(region)

	var marker *string
	functions, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[lambdatypes.FunctionConfiguration], error) {
		output, err := client.ListFunctions(ctx, &lambda.ListFunctionsInput{
			MaxItems: clampPage(limit, 1, 10000),
			Marker:   marker,
		})
		if err != nil {
			return pager.Page[lambdatypes.FunctionConfiguration]{}, fmt.Errorf("list functions: %w", err)
		}
		marker = output.NextMarker
		return pager.Page[lambdatypes.FunctionConfiguration]{Items: output.Functions, HasMore: marker != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, fn := range functions {
		tags, err := client.ListTags(ctx, &lambda.ListTagsInput{Resource: fn.FunctionArn})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		id := firstNonEmpty(aws.ToString(fn.FunctionName), aws.ToString(fn.FunctionArn))
		records = append(records, newRecord("lambda", id, region))
	}
	return records, nil
}

// scanEKS reports untagged EKS clusters.
func (s *Scanners) scanEKS(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.EKS(region)

	var nextToken *string
	names, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[string], error) {
		output, err := client.ListClusters(ctx, &eks.ListClustersInput{
			MaxResults: clampPage(limit, 1, 100),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[string]{}, fmt.Errorf("list clusters: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[string]{Items: output.Clusters, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, name := range names {
		desc, err := client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(desc.Cluster) {
			continue
		}
		records = append(records, newRecord("eks", name, region))
	}
	return records, nil
}

// ecsDescribeBatch is the DescribeClusters input limit.
const ecsDescribeBatch = 100

// scanECS reports untagged ECS clusters.
func (s *Scanners) scanECS(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.ECS(region)

	var nextToken *string
	arns, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[string], error) {
		output, err := client.ListClusters(ctx, &ecs.ListClustersInput{
			MaxResults: clampPage(limit, 1, 100),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[string]{}, fmt.Errorf("list clusters: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[string]{Items: output.ClusterArns, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for start := 0; start < len(arns); start += ecsDescribeBatch {
		batch := arns[start:min(start+ecsDescribeBatch, len(arns))]
		output, err := client.DescribeClusters(ctx, &ecs.DescribeClustersInput{
			Clusters: batch,
			Include:  []ecstypes.ClusterField{ecstypes.ClusterFieldTags},
		})
		if err != nil {
			continue
		}
		for _, cluster := range output.Clusters {
			if !tagging.HasNoTags(cluster) {
				continue
			}
			id := firstNonEmpty(aws.ToString(cluster.ClusterName), aws.ToString(cluster.ClusterArn))
			records = append(records, newRecord("ecs", id, region))
		}
	}
	return records, nil
}
