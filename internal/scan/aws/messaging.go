package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/tagging"
	"github.com/yairfalse/leima/pkg/record"
)

// scanSQS reports untagged SQS queues.
func (s *Scanners) scanSQS(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.SQS(region)

	var nextToken *string
	urls, err := pager.Fetch(ctx, func(ctx context.Context, _, limit int32) (pager.Page[string], error) {
		output, err := client.ListQueues(ctx, &sqs.ListQueuesInput{
			MaxResults: clampPage(limit, 1, 1000),
			NextToken:  nextToken,
		})
		if err != nil {
			return pager.Page[string]{}, fmt.Errorf("list queues: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[string]{Items: output.QueueUrls, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, url := range urls {
		tags, err := client.ListQueueTags(ctx, &sqs.ListQueueTagsInput{QueueUrl: aws.String(url)})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		records = append(records, newRecord("sqs", queueName(url), region))
	}
	return records, nil
}

// scanSNS reports untagged SNS topics. ListTopics has no page size knob,
// only a cursor.
func (s *Scanners) scanSNS(ctx context.Context, region string) ([]record.ScanRecord, error) {
	client := s.clients.SNS(region)

	var nextToken *string
	topics, err := pager.Fetch(ctx, func(ctx context.Context, _, _ int32) (pager.Page[snstypes.Topic], error) {
		output, err := client.ListTopics(ctx, &sns.ListTopicsInput{NextToken: nextToken})
		if err != nil {
			return pager.Page[snstypes.Topic]{}, fmt.Errorf("list topics: %w", err)
		}
		nextToken = output.NextToken
		return pager.Page[snstypes.Topic]{Items: output.Topics, HasMore: nextToken != nil}, nil
	}, s.pageOpts)
	if err != nil {
		return nil, err
	}

	var records []record.ScanRecord
	for _, topic := range topics {
		if topic.TopicArn == nil {
			continue
		}
		tags, err := client.ListTagsForResource(ctx, &sns.ListTagsForResourceInput{ResourceArn: topic.TopicArn})
		if err != nil {
			continue
		}
		if !tagging.HasNoTags(tags) {
			continue
		}
		records = append(records, newRecord("sns", topicName(aws.ToString(topic.TopicArn)), region))
	}
	return records, nil
}
