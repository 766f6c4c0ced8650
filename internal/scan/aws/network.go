package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanNetworkInterfaces reports untagged floating network interfaces.
// Attached interfaces are lifecycle-managed by whatever owns them, so
// only unattached ones make the report.
func (s *Scanners) scanNetworkInterfaces(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.EC2(region)

	var nextToken *string
	interfaces, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[ec2types.NetworkInterface], error) {
		output, err := client.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
			MaxResults: clampPage(limit, 5, 1000),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[ec2types.NetworkInterface]{}, fmt.Errorf("describe network interfaces: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[ec2types.NetworkInterface]{Items: output.NetworkInterfaces, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, ni := range interfaces {
		if !unattachedInterface(ni) {
			continue
		}
		if !tagging.HasNoTags(ni) {
			continue
		}
		records = append(records, newRecord("eni", aws.ToString(ni.NetworkInterfaceId), region))
	}
	return records, nil
}

// unattachedInterface classifies an interface as floating. A status
// outside the known sets falls back to the attachment field.
func unattachedInterface(ni ec2types.NetworkInterface) bool {
	switch ni.Status {
	case ec2types.NetworkInterfaceStatusAvailable:
		return true
	case ec2types.NetworkInterfaceStatusInUse,
		ec2types.NetworkInterfaceStatusAssociated,
		ec2types.NetworkInterfaceStatusAttaching,
		ec2types.NetworkInterfaceStatusDetaching:
		return false
	}
	if ni.Attachment != nil {
		return false
	}
	// Unrecognized status with no attachment record reads as attached
	// too, keeping such interfaces out of the report.
	return false
}

// scanElasticIPs reports untagged Elastic IPs that are not associated
// with anything.
func (s *Scanners) scanElasticIPs(ctx context.Context, region string) ([]record.ScanRecord, error) {
	output, err := s.clients.EC2(region).DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe addresses: %w", err)
	}

	var records []record.ScanRecord
	for _, addr := range output.Addresses {
		if addr.AssociationId != nil {
			continue
		}
		if !tagging.HasNoTags(addr) {
			continue
		}
		id := firstNonEmpty(aws.ToString(addr.AllocationId), aws.ToString(addr.PublicIp))
		records = append(records, newRecord("eip", id, region))
	}
	return records, nil
}

// elbTagBatch is the DescribeTags input limit.
const elbTagBatch = 20

// scanELB reports untagged application and network load balancers.
// Tags live behind a separate DescribeTags call taken in batches.
func (s *Scanners) scanELB(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.ELB(region)

	var marker *string
	loadBalancers, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[elbtypes.LoadBalancer], error) {
		output, err := client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
			PageSize: clampPage(limit, 1, 400),
			Marker:   marker,
		})
		if err != nil {
			return pager.Page[elbtypes.LoadBalancer]{}, fmt.Errorf("describe load balancers: %w", err)
		}
		marker = output.NextMarker
		return pager.Page[elbtypes.LoadBalancer]{Items: output.LoadBalancers, HasMore: marker != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	nameByARN := make(map[string]string, len(loadBalancers))
	arns := make([]string, 0, len(loadBalancers))
	for _, lb := range loadBalancers {
		arn := aws.ToString(lb.LoadBalancerArn)
		if arn == "" {
			continue
		}
		arns = append(arns, arn)
		nameByARN[arn] = aws.ToString(lb.LoadBalancerName)
	}

	var records []record.ScanRecord
	for start := 0; start < len(arns); start += elbTagBatch {
		batch := arns[start:min(start+elbTagBatch, len(arns))]
		output, err := client.DescribeTags(ctx, &elasticloadbalancingv2.DescribeTagsInput{ResourceArns: batch})
		if err != nil {
			continue
		}
		for _, td := range output.TagDescriptions {
			if !tagging.HasNoTags(td) {
				continue
			}
			arn := aws.ToString(td.ResourceArn)
			records = append(records, newRecord("elb", firstNonEmpty(nameByARN[arn], arn), region))
		}
	}
	return records, nil
}

// scanSecurityGroups reports untagged security groups.
func (s *Scanners) scanSecurityGroups(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.EC2(region)

	var nextToken *string
	groups, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[ec2types.SecurityGroup], error) {
		output, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
			MaxResults: clampPage(limit, 5, 1000),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[ec2types.SecurityGroup]{}, fmt.Errorf("describe security groups: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[ec2types.SecurityGroup]{Items: output.SecurityGroups, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, sg := range groups {
		if !tagging.HasNoTags(sg) {
			continue
		}
		id := firstNonEmpty(aws.ToString(sg.GroupId), aws.ToString(sg.GroupName))
		records = append(records, newRecord("security_group", id, region))
	}
	return records, nil
}
