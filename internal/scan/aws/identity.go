package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/regions"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanIAMRoles reports untagged IAM roles. IAM is account-global, so the
// unit only does work in the control-plane region and stamps its records
// with the global sentinel.
func (s *Scanners) scanIAMRoles(ctx context.Context, region string) ([]record.ScanRecord, error) {
	if region != regions.ControlPlaneRegion {
		return nil, nil
	}
	client := s.clients.IAM(region)

	var marker *string
	roles, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[iamtypes.Role], error) {
		output, err := client.ListRoles(ctx, &iam.ListRolesInput{
			MaxItems: clampPage(limit, 1, 1000),
			Marker:   marker,
		})
		if err != nil {
			return pager.Page[iamtypes.Role]{}, fmt.Errorf("list roles: %w", err)
		}
		marker = output.Marker
		return pager.Page[iamtypes.Role]{Items: output.Roles, HasMore: output.IsTruncated}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, role := range roles {
		// Service-linked roles are owned by AWS services and not
		// taggable by operators.
		if strings.HasPrefix(aws.ToString(role.Path), "/aws-service-role/") {
			continue
		}
		// ListRoles leaves the tag list empty even for tagged roles.
		tags, err := client.ListRoleTags(ctx, &iam.ListRoleTagsInput{RoleName: role.RoleName})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		id := firstNonEmpty(aws.ToString(role.RoleName), aws.ToString(role.Arn))
		records = append(records, newRecord("iam_role", id, record.GlobalRegion))
	}
	return records, nil
}

// scanKMSKeys reports untagged customer KMS keys.
func (s *Scanners) scanKMSKeys(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.KMS(region)

	var marker *string
	keys, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[kmstypes.KeyListEntry], error) {
		output, err := client.ListKeys(ctx, &kms.ListKeysInput{
			Limit:  clampPage(limit, 1, 1000),
			Marker: marker,
		})
		if err != nil {
			return pager.Page[kmstypes.KeyListEntry]{}, fmt.Errorf("list keys: %w", err)
		}
		marker = output.NextMarker
		return pager.Page[kmstypes.KeyListEntry]{Items: output.Keys, HasMore: output.Truncated}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, key := range keys {
		if key.KeyId == nil {
			continue
		}
		// AWS-managed keys answer ListResourceTags with AccessDenied.
		tags, err := client.ListResourceTags(ctx, &kms.ListResourceTagsInput{KeyId: key.KeyId})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		records = append(records, newRecord("kms", aws.ToString(key.KeyId), region))
	}
	return records, nil
}
