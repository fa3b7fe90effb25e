package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/config"
)

var snsCosts = map[string]float64{
	"US": 0.00645,
	"CA": 0.00750,
	"GB": 0.03500,
	"SA": 0.04200,
	"AE": 0.04500,
	"IN": 0.00250,
}

const snsDefaultCost = 0.050

// SNS sends SMS through AWS SNS. It covers the non-African markets where the
// dedicated aggregators have no routes. Credentials are resolved by the AWS
// default chain, so configuration here is just the enable flag and region.
type SNS struct {
	cfg    config.SNSConfig
	client *sns.Client
	logger *zap.Logger
}

// NewSNS loads the AWS config eagerly; a load failure is returned so the
// registry can skip the provider rather than carry a broken client.
func NewSNS(ctx context.Context, cfg config.SNSConfig, logger *zap.Logger) (*SNS, error) {
	p := &SNS{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		return p, nil
	}
	if cfg.Debug {
		return p, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}
	p.client = sns.NewFromConfig(awsCfg)
	return p, nil
}

func (s *SNS) Name() string { return "sns" }

func (s *SNS) IsConfigured() bool {
	if !s.cfg.Enabled {
		return false
	}
	return s.cfg.Debug || (s.client != nil && s.cfg.Region != "")
}

func (s *SNS) SupportedCountries() []string {
	return []string{"US", "CA", "GB", "SA", "AE", "IN"}
}

func (s *SNS) CostPerMessage(country string) float64 {
	return costFor(snsCosts, country, snsDefaultCost)
}

// CostPerMinute is zero: SNS is SMS-only.
func (s *SNS) CostPerMinute(country string) float64 { return 0 }

func (s *SNS) FormatAddress(raw, country string) string {
	return FormatPhone(raw, country)
}

func (s *SNS) SendSMS(ctx context.Context, to, message, country string) Result {
	if !s.IsConfigured() {
		return notConfiguredResult(s.Name())
	}
	if s.cfg.Debug {
		return debugResult(s.Name(), s.CostPerMessage(country))
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(s.FormatAddress(to, country)),
		Message:     aws.String(message),
	}
	if s.cfg.SenderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.cfg.SenderID),
			},
		}
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return Failed(s.Name(), fmt.Sprintf("sns publish failed: %v", err), "")
	}

	s.logger.Info("sms sent via sns",
		zap.String("country", country),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return Succeeded(s.Name(), aws.ToString(result.MessageId), s.CostPerMessage(country), StatusSent, "")
}
