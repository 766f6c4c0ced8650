// Package regions resolves the set of regions a run will scan.
package regions

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// ControlPlaneRegion hosts the region discovery call and account-global
// scanner units.
const ControlPlaneRegion = "us-east-1"

// DescribeRegionsAPI defines the EC2 operation used for region discovery.
type DescribeRegionsAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// Resolve returns the deduplicated region set for one run.
// A non-empty override wins and never touches the network; otherwise one
// DescribeRegions call against the control-plane region lists the regions
// enabled for the account. Resolution failure is fatal to the run since
// there is nothing to scan without regions.
func Resolve(ctx context.Context, client DescribeRegionsAPI, override []string) ([]string, error) {
	if codes := parseOverride(override); len(codes) > 0 {
		return codes, nil
	}

	output, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	codes := make([]string, 0, len(output.Regions))
	for _, r := range output.Regions {
		if code := aws.ToString(r.RegionName); code != "" {
			codes = append(codes, code)
		}
	}
	codes = dedupe(codes)
	if len(codes) == 0 {
		return nil, fmt.Errorf("describe regions: account has no enabled regions")
	}
	return codes, nil
}

// parseOverride flattens override entries, splitting on commas and
// trimming whitespace, preserving first-occurrence order.
func parseOverride(override []string) []string {
	var codes []string
	for _, entry := range override {
		for _, code := range strings.Split(entry, ",") {
			code = strings.TrimSpace(code)
			if code != "" {
				codes = append(codes, code)
			}
		}
	}
	return dedupe(codes)
}

func dedupe(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := codes[:0]
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}
