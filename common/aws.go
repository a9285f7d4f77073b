package common

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

// DefaultAWSRegion is the region bulk registration runs in unless configured.
const DefaultAWSRegion = "us-west-2"

// AWSOpts configures the session shared by the IoT and S3 clients.
type AWSOpts struct {
	Region   string
	Endpoint string

	// Profile selects a shared config profile; empty uses the default chain.
	Profile string

	// AccessKey and SecretKey override the default credential chain when both are set.
	AccessKey string
	SecretKey string
}

// NewAWSSession creates an AWS session from opts.
func NewAWSSession(opts AWSOpts) (*session.Session, error) {
	region := opts.Region
	if region == "" {
		region = DefaultAWSRegion
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            cfg,
		Profile:           opts.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}
