/*
Copyright 2025 containeroo.ch

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package awsdiscovery discovers EC2 instances and Auto Scaling Group
// members tagged for HAProxy service discovery.
package awsdiscovery

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	autoscalingtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"

	"github.com/containeroo/haproxy-cloud-discovery/internal/apperrors"
	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
	"github.com/containeroo/haproxy-cloud-discovery/internal/discovery"
)

const batchSize = 100

// ec2API and autoscalingAPI narrow the SDK clients to the calls this
// package exercises, so tests can substitute fakes without spinning up
// real AWS clients.
type ec2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

type autoscalingAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
}

// Client discovers EC2 instances and ASG members in one AWS account/region.
type Client struct {
	ec2         ec2API
	autoscaling autoscalingAPI
	region      string
	accountID   string
	tags        config.TagsConfig
	logger      logr.Logger
}

var tagNames = func(tags config.TagsConfig) discovery.TagNames {
	return discovery.TagNames{
		ServiceName:  tags.ServiceNameTag,
		ServicePort:  tags.ServicePortTag,
		InstancePort: tags.InstancePortTag,
	}
}

// New builds a Client using the default AWS credential chain, optionally
// scoped to a named credential profile.
func New(ctx context.Context, cfg *config.AWSConfig, tagsCfg config.TagsConfig, logger logr.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.CredentialProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.CredentialProfile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewDiscoveryError("load aws configuration", err)
	}

	return &Client{
		ec2:         ec2.NewFromConfig(awsCfg),
		autoscaling: autoscaling.NewFromConfig(awsCfg),
		region:      cfg.Region,
		accountID:   cfg.AccountID,
		tags:        tagsCfg,
		logger:      logger,
	}, nil
}

// DiscoverAll enumerates running, tagged EC2 instances directly and via
// Auto Scaling Group membership. Instances already found directly are not
// duplicated when resolving ASG members.
func (c *Client) DiscoverAll(ctx context.Context) ([]discovery.Instance, error) {
	ec2Instances, err := c.discoverEC2(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(ec2Instances))
	for _, inst := range ec2Instances {
		known[inst.InstanceID] = struct{}{}
	}

	asgInstances, err := c.discoverASG(ctx, known)
	if err != nil {
		return nil, err
	}

	instances := append(ec2Instances, asgInstances...)
	c.logger.Info("aws discovery complete", "total_instances", len(instances))
	return instances, nil
}

func (c *Client) discoverEC2(ctx context.Context) ([]discovery.Instance, error) {
	var instances []discovery.Instance

	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag-key"), Values: []string{c.tags.ServiceNameTag}},
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	}

	for {
		out, err := c.ec2.DescribeInstances(ctx, input)
		if err != nil {
			return nil, apperrors.NewDiscoveryError("describe ec2 instances", err)
		}
		for _, reservation := range out.Reservations {
			for _, raw := range reservation.Instances {
				if inst, ok := c.parseEC2Instance(raw, "ec2"); ok {
					instances = append(instances, inst)
				}
			}
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	c.logger.Info("ec2 discovery complete", "instances", len(instances))
	return instances, nil
}

func (c *Client) discoverASG(ctx context.Context, known map[string]struct{}) ([]discovery.Instance, error) {
	var candidateIDs []string

	input := &autoscaling.DescribeAutoScalingGroupsInput{
		Filters: []autoscalingtypes.Filter{
			{Name: aws.String("tag-key"), Values: []string{c.tags.ServiceNameTag}},
		},
	}
	for {
		out, err := c.autoscaling.DescribeAutoScalingGroups(ctx, input)
		if err != nil {
			return nil, apperrors.NewDiscoveryError("describe auto scaling groups", err)
		}
		for _, group := range out.AutoScalingGroups {
			for _, member := range group.Instances {
				id := aws.ToString(member.InstanceId)
				if _, seen := known[id]; id != "" && !seen {
					candidateIDs = append(candidateIDs, id)
				}
			}
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	if len(candidateIDs) == 0 {
		c.logger.Info("asg discovery complete", "instances", 0)
		return nil, nil
	}

	var instances []discovery.Instance
	for _, batch := range chunk(candidateIDs, batchSize) {
		out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: batch,
			Filters: []ec2types.Filter{
				{Name: aws.String("instance-state-name"), Values: []string{"running"}},
			},
		})
		if err != nil {
			return nil, apperrors.NewDiscoveryError("describe asg member instances", err)
		}
		for _, reservation := range out.Reservations {
			for _, raw := range reservation.Instances {
				if inst, ok := c.parseEC2Instance(raw, "asg"); ok {
					instances = append(instances, inst)
				}
			}
		}
	}

	c.logger.Info("asg discovery complete", "instances", len(instances))
	return instances, nil
}

func (c *Client) parseEC2Instance(raw ec2types.Instance, source string) (discovery.Instance, bool) {
	tags := tagsToMap(raw.Tags)

	identity, ok := discovery.ParseServiceIdentity(tags, tagNames(c.tags), c.logger, aws.ToString(raw.InstanceId))
	if !ok {
		return discovery.Instance{}, false
	}

	privateIP := aws.ToString(raw.PrivateIpAddress)
	if privateIP == "" {
		c.logger.Info("ec2 instance has no private ip, skipping", "instance", aws.ToString(raw.InstanceId))
		return discovery.Instance{}, false
	}

	var az string
	if raw.Placement != nil {
		az = aws.ToString(raw.Placement.AvailabilityZone)
	}
	region := c.region
	if az != "" {
		region = az[:len(az)-1]
	}

	var createdAt time.Time
	if raw.LaunchTime != nil {
		createdAt = *raw.LaunchTime
	}

	accountID := c.accountID
	if accountID == "" && raw.OwnerId != nil {
		accountID = *raw.OwnerId
	}

	name := tags["Name"]
	if name == "" {
		name = aws.ToString(raw.InstanceId)
	}

	return discovery.Instance{
		InstanceID:       aws.ToString(raw.InstanceId),
		Name:             name,
		PrivateIP:        privateIP,
		PublicIP:         aws.ToString(raw.PublicIpAddress),
		ServiceName:      identity.ServiceName,
		ServicePort:      identity.ServicePort,
		InstancePort:     identity.InstancePort,
		Region:           region,
		AvailabilityZone: az,
		Namespace:        accountID,
		Source:           source,
		Tags:             tags,
		CreatedAt:        createdAt,
		PowerState:       "running",
	}, true
}

func tagsToMap(tags []ec2types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

