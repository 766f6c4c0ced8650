package regions

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEC2Client struct {
	DescribeRegionsFunc func(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

func (m *mockEC2Client) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return m.DescribeRegionsFunc(ctx, params, optFns...)
}

func TestResolve(t *testing.T) {
	t.Run("override skips discovery", func(t *testing.T) {
		mock := &mockEC2Client{
			DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
				t.Fatal("DescribeRegions must not be called with an override")
				return nil, nil
			},
		}

		regions, err := Resolve(context.Background(), mock, []string{"eu-west-1,us-east-1"})

		require.NoError(t, err)
		assert.Equal(t, []string{"eu-west-1", "us-east-1"}, regions)
	})

	t.Run("override trims and dedupes", func(t *testing.T) {
		regions, err := Resolve(context.Background(), nil, []string{" us-east-1 , eu-west-1", "us-east-1", ""})

		require.NoError(t, err)
		assert.Equal(t, []string{"us-east-1", "eu-west-1"}, regions)
	})

	t.Run("discovery lists enabled regions", func(t *testing.T) {
		mock := &mockEC2Client{
			DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
				return &ec2.DescribeRegionsOutput{
					Regions: []ec2types.Region{
						{RegionName: aws.String("us-east-1")},
						{RegionName: aws.String("eu-west-1")},
						{RegionName: aws.String("ap-southeast-2")},
					},
				}, nil
			},
		}

		regions, err := Resolve(context.Background(), mock, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"us-east-1", "eu-west-1", "ap-southeast-2"}, regions)
	})

	t.Run("discovery failure is returned", func(t *testing.T) {
		mock := &mockEC2Client{
			DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
				return nil, errors.New("access denied")
			},
		}

		regions, err := Resolve(context.Background(), mock, nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "describe regions")
		assert.Nil(t, regions)
	})

	t.Run("empty discovery result is an error", func(t *testing.T) {
		mock := &mockEC2Client{
			DescribeRegionsFunc: func(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
				return &ec2.DescribeRegionsOutput{}, nil
			},
		}

		regions, err := Resolve(context.Background(), mock, nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no enabled regions")
		assert.Nil(t, regions)
	})
}
