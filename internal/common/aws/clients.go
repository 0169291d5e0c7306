// Package aws builds the SES and SNS clients the notification step delivers
// through. Both share one config resolved from the default credential chain.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Clients holds the transports that were requested; the others stay nil.
type Clients struct {
	SES *ses.Client
	SNS *sns.Client
}

// Load resolves credentials once for region and creates the clients for the
// enabled channels. It returns an empty Clients without touching the
// credential chain when neither channel is enabled.
func Load(ctx context.Context, region string, email, sms bool) (*Clients, error) {
	out := &Clients{}
	if !email && !sms {
		return out, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for %s: %w", region, err)
	}
	if email {
		out.SES = ses.NewFromConfig(cfg)
	}
	if sms {
		out.SNS = sns.NewFromConfig(cfg)
	}
	return out, nil
}
