package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanCloudWatchLogs reports untagged CloudWatch log groups.
func (s *Scanners) scanCloudWatchLogs(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.CloudWatchLogs(region)

	var nextToken *string
	groups, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[cwltypes.LogGroup], error) {
		output, err := client.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
			Limit:     clampPage(limit, 1, 50),
			NextToken: nextToken,
		})
		if err != nil {
			return pager.Page[cwltypes.LogGroup]{}, fmt.Errorf("describe log groups: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[cwltypes.LogGroup]{Items: output.LogGroups, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, group := range groups {
		arn := logGroupARN(group)
		if arn == "" {
			continue
		}
		tags, err := client.ListTagsForResource(ctx, &cloudwatchlogs.ListTagsForResourceInput{ResourceArn: aws.String(arn)})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		id := firstNonEmpty(aws.ToString(group.LogGroupName), arn)
		records = append(records, newRecord("cloudwatch_logs", id, region))
	}
	return records, nil
}

// logGroupARN returns the tag-API form of a log group ARN. The legacy Arn
// field carries a ":*" suffix that the tagging API rejects.
func logGroupARN(group cwltypes.LogGroup) string {
	if arn := aws.ToString(group.LogGroupArn); arn != "" {
		return arn
	}
	return strings.TrimSuffix(aws.ToString(group.Arn), ":*")
}

const cloudtrailTagBatch = 20

// scanCloudTrail reports untagged CloudTrail trails. Multi-region trails
// surface in every region's listing, so only the home region audits them.
func (s *Scanners) scanCloudTrail(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.CloudTrail(region)

	listed, err := client.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe trails: %w", err)
	}

	nameByARN := make(map[string]string)
	var arns []string
	for _, trail := range listed.TrailList {
		if aws.ToString(trail.HomeRegion) != region {
			continue
		}
		arn := aws.ToString(trail.TrailARN)
		if arn == "" {
			continue
		}
		nameByARN[arn] = aws.ToString(trail.Name)
		arns = append(arns, arn)
	}

	var records []record.ScanRecord
	for start := 0; start < len(arns); start += cloudtrailTagBatch {
		end := start + cloudtrailTagBatch
		if end > len(arns) {
			end = len(arns)
		}
		tags, err := client.ListTags(ctx, &cloudtrail.ListTagsInput{ResourceIdList: arns[start:end]})
		if err != nil {
			continue
		}
		for _, rt := range tags.ResourceTagList {
			if !tagging.HasNoTags(rt) {
				continue
			}
			arn := aws.ToString(rt.ResourceId)
			id := firstNonEmpty(nameByARN[arn], arn)
			records = append(records, newRecord("cloudtrail", id, region))
		}
	}
	return records, nil
}
