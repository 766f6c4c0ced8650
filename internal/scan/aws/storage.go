package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/leima/internal/dispatch"
	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/regions"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanEBSVolumes reports untagged EBS volumes.
func (s *Scanners) scanEBSVolumes(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.EC2(region)

	var nextToken *string
	volumes, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[ec2types.Volume], error) {
		output, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
			MaxResults: clampPage(limit, 5, 500),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[ec2types.Volume]{}, fmt.Errorf("describe volumes: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[ec2types.Volume]{Items: output.Volumes, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, volume := range volumes {
		if !tagging.HasNoTags(volume) {
			continue
		}
		records = append(records, newRecord("ebs", aws.ToString(volume.VolumeId), region))
	}
	return records, nil
}

// scanECR reports untagged ECR repositories.
func (s *Scanners) scanECR(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.ECR(region)

	var nextToken *string
	repos, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[ecrtypes.Repository], error) {
		output, err := client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
			MaxResults: clampPage(limit, 1, 1000),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[ecrtypes.Repository]{}, fmt.Errorf("describe repositories: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[ecrtypes.Repository]{Items: output.Repositories, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, repo := range repos {
		if repo.RepositoryArn == nil {
			continue
		}
		tags, err := client.ListTagsForResource(ctx, &ecr.ListTagsForResourceInput{ResourceArn: repo.RepositoryArn})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		id := firstNonEmpty(aws.ToString(repo.RepositoryName), aws.ToString(repo.RepositoryArn))
		records = append(records, newRecord("ecr", id, region))
	}
	return records, nil
}

// DefaultBucketConcurrency bounds parallel bucket tag lookups.
const DefaultBucketConcurrency = 8

// BucketScanner audits S3 buckets for the whole account. Buckets are not a
// regional resource, so it runs once per scan beside the region dispatcher
// and stamps its records with the global sentinel region.
type BucketScanner struct {
	clients     *Factory
	workers     int
	callTimeout time.Duration
}

// NewBucketScanner creates a bucket scanner. Zero workers or timeout fall
// back to defaults.
func NewBucketScanner(clients *Factory, workers int, callTimeout time.Duration) *BucketScanner {
	if workers <= 0 {
		workers = DefaultBucketConcurrency
	}
	if callTimeout <= 0 {
		callTimeout = pager.DefaultPageTimeout
	}
	return &BucketScanner{clients: clients, workers: workers, callTimeout: callTimeout}
}

// Key returns the scanner key shared with the regional S3 namespace.
func (b *BucketScanner) Key() string { return "s3" }

// Scan lists every bucket once, then checks tag sets from a bounded worker
// pool. A bucket whose tag descriptor cannot be fetched is dropped from the
// report rather than failing the pool.
func (b *BucketScanner) Scan(ctx context.Context) ([]record.ScanRecord, error) {
	client := b.clients.S3(regions.ControlPlaneRegion)

	listed, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	var (
		mu      sync.Mutex
		records []record.ScanRecord
	)
	dispatch.ForEach(ctx, listed.Buckets, b.workers, func(ctx context.Context, bucket s3types.Bucket) {
		name := aws.ToString(bucket.Name)
		if name == "" {
			return
		}
		untagged, err := b.bucketUntagged(ctx, client, name)
		if err != nil {
			log.Debug().Err(err).Str("bucket", name).Msg("bucket tag lookup failed, dropped from report")
			return
		}
		if !untagged {
			return
		}
		mu.Lock()
		records = append(records, newRecord("s3", name, record.GlobalRegion))
		mu.Unlock()
	})
	return records, nil
}

func (b *BucketScanner) bucketUntagged(ctx context.Context, client S3API, name string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	tags, err := client.GetBucketTagging(callCtx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
	if err != nil {
		// A bucket with no tag set at all answers with an API error
		// instead of an empty list.
		if isNoTagSet(err) {
			return true, nil
		}
		return false, err
	}
	return tagging.HasNoTags(tags), nil
}

func isNoTagSet(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchTagSet"
}
