package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	rgta "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	rgtatypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/pkg/record"
)

// longTailTypes lists resource kinds audited through the tagging API
// instead of a dedicated unit.
var longTailTypes = []string{
	"acm:certificate",
	"codebuild:project",
	"elasticfilesystem:file-system",
	"firehose:deliverystream",
	"kinesis:stream",
	"secretsmanager:secret",
	"states:stateMachine",
}

// scanTaggingAPI sweeps long-tail services through the Resource Groups
// Tagging API. GetResources only knows resources that were tagged at some
// point, so this unit catches the ones whose tags were later removed.
func (s *Scanners) scanTaggingAPI(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.Tagging(region)

	var token *string
	mappings, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[rgtatypes.ResourceTagMapping], error) {
		output, err := client.GetResources(ctx, &rgta.GetResourcesInput{
			ResourcesPerPage:    clampPage(limit, 1, 100),
			ResourceTypeFilters: longTailTypes,
			PaginationToken:     token,
		})
		if err != nil {
			return pager.Page[rgtatypes.ResourceTagMapping]{}, fmt.Errorf("get resources: %w", err)
		}
		token = output.PaginationToken
		// The tagging API signals the last page with an empty token,
		// not a missing one.
		more := token != nil && *token != ""
		return pager.Page[rgtatypes.ResourceTagMapping]{Items: output.ResourceTagMappingList, HasMore: more}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, mapping := range mappings {
		if len(mapping.Tags) != 0 {
			continue
		}
		arn := aws.ToString(mapping.ResourceARN)
		if arn == "" {
			continue
		}
		service := firstNonEmpty(arnService(arn), "tagging_api")
		records = append(records, newRecord(service, resourceIDFromARN(arn), region))
	}
	return records, nil
}

// arnService returns the service segment of an ARN.
func arnService(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
