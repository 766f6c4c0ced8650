// Package aws implements the scanner units for AWS resource kinds.
package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/scan"
	"github.com/yairfalse/leima/pkg/record"
)

type unit struct {
	key string
	fn  func(ctx context.Context, region string) ([]record.ScanRecord, error)
}

func (u *unit) Key() string { return u.key }

func (u *unit) Scan(ctx context.Context, region string) ([]record.ScanRecord, error) {
	return u.fn(ctx, region)
}

// Scanners binds every AWS scanner unit to a shared client factory.
type Scanners struct {
	clients  *Factory
	pageOpts pager.Options
}

func NewScanners(clients *Factory, pageOpts pager.Options) *Scanners {
	return &Scanners{clients: clients, pageOpts: pageOpts}
}

// Units returns every AWS scanner unit. The S3 bucket audit is account
// global and runs through BucketScanner instead.
func (s *Scanners) Units() []scan.Unit {
	return []scan.Unit{
		&unit{"asg", s.scanASG},
		&unit{"cloudtrail", s.scanCloudTrail},
		&unit{"cloudwatch_logs", s.scanCloudWatchLogs},
		&unit{"dynamodb", s.scanDynamoDB},
		&unit{"ebs", s.scanEBSVolumes},
		&unit{"ec2", s.scanEC2},
		&unit{"ecr", s.scanECR},
		&unit{"ecs", s.scanECS},
		&unit{"eip", s.scanElasticIPs},
		&unit{"eks", s.scanEKS},
		&unit{"elasticache", s.scanElastiCache},
		&unit{"elb", s.scanELB},
		&unit{"eni", s.scanNetworkInterfaces},
		&unit{"iam_role", s.scanIAMRoles},
		&unit{"kms", s.scanKMSKeys},
		&unit{"lambda", s.scanLambda},
		&unit{"memorydb", s.scanMemoryDB},
		&unit{"rds", s.scanRDS},
		&unit{"redshift", s.scanRedshift},
		&unit{"route53", s.scanRoute53},
		&unit{"security_group", s.scanSecurityGroups},
		&unit{"sns", s.scanSNS},
		&unit{"sqs", s.scanSQS},
		&unit{"tagging_api", s.scanTaggingAPI},
	}
}

// RegisterAll puts every AWS unit into the shared registry.
func (s *Scanners) RegisterAll() {
	for _, u := range s.Units() {
		scan.Register(u)
	}
}

// newRecord builds one report entry.
func newRecord(service, id, region string) record.ScanRecord {
	return record.ScanRecord{Service: service, ID: id, Region: region}
}

// firstNonEmpty picks the first usable identifier from a fallback chain.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// clampPage keeps a requested page size inside a service's accepted range.
func clampPage(limit, lo, hi int32) *int32 {
	if limit < lo {
		limit = lo
	}
	if limit > hi {
		limit = hi
	}
	return aws.Int32(limit)
}

// resourceIDFromARN extracts the trailing resource portion of an ARN,
// e.g. "arn:aws:kinesis:us-east-1:123:stream/events" -> "events".
func resourceIDFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	tail := parts[len(parts)-1]
	if i := strings.LastIndex(tail, "/"); i >= 0 {
		tail = tail[i+1:]
	}
	return tail
}

// queueName extracts the queue name from an SQS queue URL.
func queueName(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// topicName extracts the topic name from an SNS topic ARN.
func topicName(arn string) string {
	parts := strings.Split(arn, ":")
	return parts[len(parts)-1]
}
