package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	route53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/regions"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanRoute53 reports untagged Route 53 hosted zones. Zones are
// account-global, so the unit only does work in the control-plane region.
func (s *Scanners) scanRoute53(ctx context.Context, region string) ([]record.ScanRecord, error) {
	if region != regions.ControlPlaneRegion {
		return nil, nil
	}
	client := s.clients.Route53(region)

	var marker *string
	zones, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[route53types.HostedZone], error) {
		output, err := client.ListHostedZones(ctx, &route53.ListHostedZonesInput{
			MaxItems: clampPage(limit, 1, 100),
			Marker:   marker,
		})
		if err != nil {
			return pager.Page[route53types.HostedZone]{}, fmt.Errorf("list hosted zones: %w", err)
		}
		marker = output.NextMarker
		return pager.Page[route53types.HostedZone]{Items: output.HostedZones, HasMore: output.IsTruncated}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, zone := range zones {
		// Zone ids arrive as "/hostedzone/Z123"; the tag API wants the
		// bare id.
		zoneID := strings.TrimPrefix(aws.ToString(zone.Id), "/hostedzone/")
		if zoneID == "" {
			continue
		}
		tags, err := client.ListTagsForResource(ctx, &route53.ListTagsForResourceInput{
			ResourceType: route53types.TagResourceTypeHostedzone,
			ResourceId:   aws.String(zoneID),
		})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags.ResourceTagSet) {
			continue
		}
		id := firstNonEmpty(strings.TrimSuffix(aws.ToString(zone.Name), "."), zoneID)
		records = append(records, newRecord("route53", id, record.GlobalRegion))
	}
	return records, nil
}
