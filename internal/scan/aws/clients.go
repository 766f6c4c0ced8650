package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/leima/internal/regions"
)

// Options configure credential and endpoint wiring for the factory.
type Options struct {
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	BaseEndpoint    string
}

// Factory builds service clients scoped to a region and caches them per
// (service, region) so units within a region share handles.
type Factory struct {
	base aws.Config

	mu    sync.Mutex
	cache map[clientKey]interface{}
}

type clientKey struct {
	service string
	region  string
}

// NewFactory loads the base AWS config once. Explicit key material wins
// over a named profile; with neither, the ambient identity chain applies.
func NewFactory(ctx context.Context, opts Options) (*Factory, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(regions.ControlPlaneRegion),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}
	if opts.BaseEndpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.BaseEndpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Factory{base: cfg, cache: make(map[clientKey]interface{})}, nil
}

// ConfigFor returns a regional copy of the base config, for callers that
// need a client outside the scanner's narrow interfaces.
func (f *Factory) ConfigFor(region string) aws.Config {
	cfg := f.base.Copy()
	cfg.Region = region
	return cfg
}

// clientFor returns the cached client for (service, region), building it
// on first use.
func clientFor[T any](f *Factory, service, region string, build func(aws.Config) T) T {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := clientKey{service: service, region: region}
	if c, ok := f.cache[key]; ok {
		return c.(T)
	}
	c := build(f.ConfigFor(region))
	f.cache[key] = c
	return c
}

// VerifyIdentity validates the session credentials and returns the
// caller account ID and ARN.
func (f *Factory) VerifyIdentity(ctx context.Context) (string, string, error) {
	output, err := f.STS(regions.ControlPlaneRegion).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", fmt.Errorf("get caller identity: %w", err)
	}
	return aws.ToString(output.Account), aws.ToString(output.Arn), nil
}

func (f *Factory) EC2(region string) EC2API {
	return clientFor(f, "ec2", region, func(cfg aws.Config) EC2API { return ec2.NewFromConfig(cfg) })
}

func (f *Factory) AutoScaling(region string) AutoScalingAPI {
	return clientFor(f, "autoscaling", region, func(cfg aws.Config) AutoScalingAPI { return autoscaling.NewFromConfig(cfg) })
}

func (f *Factory) Lambda(region string) LambdaAPI {
	return clientFor(f, "lambda", region, func(cfg aws.Config) LambdaAPI { return lambda.NewFromConfig(cfg) })
}

func (f *Factory) EKS(region string) EKSAPI {
	return clientFor(f, "eks", region, func(cfg aws.Config) EKSAPI { return eks.NewFromConfig(cfg) })
}

func (f *Factory) ECS(region string) ECSAPI {
	return clientFor(f, "ecs", region, func(cfg aws.Config) ECSAPI { return ecs.NewFromConfig(cfg) })
}

func (f *Factory) RDS(region string) RDSAPI {
	return clientFor(f, "rds", region, func(cfg aws.Config) RDSAPI { return rds.NewFromConfig(cfg) })
}

func (f *Factory) DynamoDB(region string) DynamoDBAPI {
	return clientFor(f, "dynamodb", region, func(cfg aws.Config) DynamoDBAPI { return dynamodb.NewFromConfig(cfg) })
}

func (f *Factory) ElastiCache(region string) ElastiCacheAPI {
	return clientFor(f, "elasticache", region, func(cfg aws.Config) ElastiCacheAPI { return elasticache.NewFromConfig(cfg) })
}

func (f *Factory) Redshift(region string) RedshiftAPI {
	return clientFor(f, "redshift", region, func(cfg aws.Config) RedshiftAPI { return redshift.NewFromConfig(cfg) })
}

func (f *Factory) MemoryDB(region string) MemoryDBAPI {
	return clientFor(f, "memorydb", region, func(cfg aws.Config) MemoryDBAPI { return memorydb.NewFromConfig(cfg) })
}

func (f *Factory) ELB(region string) ELBAPI {
	return clientFor(f, "elbv2", region, func(cfg aws.Config) ELBAPI { return elasticloadbalancingv2.NewFromConfig(cfg) })
}

func (f *Factory) S3(region string) S3API {
	return clientFor(f, "s3", region, func(cfg aws.Config) S3API { return s3.NewFromConfig(cfg) })
}

func (f *Factory) ECR(region string) ECRAPI {
	return clientFor(f, "ecr", region, func(cfg aws.Config) ECRAPI { return ecr.NewFromConfig(cfg) })
}

func (f *Factory) IAM(region string) IAMAPI {
	return clientFor(f, "iam", region, func(cfg aws.Config) IAMAPI { return iam.NewFromConfig(cfg) })
}

func (f *Factory) KMS(region string) KMSAPI {
	return clientFor(f, "kms", region, func(cfg aws.Config) KMSAPI { return kms.NewFromConfig(cfg) })
}

func (f *Factory) SQS(region string) SQSAPI {
	return clientFor(f, "sqs", region, func(cfg aws.Config) SQSAPI { return sqs.NewFromConfig(cfg) })
}

func (f *Factory) SNS(region string) SNSAPI {
	return clientFor(f, "sns", region, func(cfg aws.Config) SNSAPI { return sns.NewFromConfig(cfg) })
}

func (f *Factory) CloudWatchLogs(region string) CloudWatchLogsAPI {
	return clientFor(f, "cloudwatchlogs", region, func(cfg aws.Config) CloudWatchLogsAPI { return cloudwatchlogs.NewFromConfig(cfg) })
}

func (f *Factory) CloudTrail(region string) CloudTrailAPI {
	return clientFor(f, "cloudtrail", region, func(cfg aws.Config) CloudTrailAPI { return cloudtrail.NewFromConfig(cfg) })
}

func (f *Factory) Route53(region string) Route53API {
	return clientFor(f, "route53", region, func(cfg aws.Config) Route53API { return route53.NewFromConfig(cfg) })
}

func (f *Factory) Tagging(region string) TaggingAPI {
	return clientFor(f, "resourcegroupstaggingapi", region, func(cfg aws.Config) TaggingAPI { return resourcegroupstaggingapi.NewFromConfig(cfg) })
}

func (f *Factory) STS(region string) STSAPI {
	return clientFor(f, "sts", region, func(cfg aws.Config) STSAPI { return sts.NewFromConfig(cfg) })
}
