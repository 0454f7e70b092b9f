// internal/alerting/notifier.go
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	awsclient "eligibility-engine/internal/common/aws"
	"eligibility-engine/internal/common/config"
	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/logger"
)

const sendTimeout = 10 * time.Second

// Notifier tells operators about evaluation failures caused by the decision table or the
// engine. Alerts for one error code are rate limited by the configured cooldown.
type Notifier struct {
	sns      awsclient.SNSAPI
	ses      awsclient.SESAPI
	topicARN string
	from     string
	to       []string
	cooldown time.Duration
	service  string
	logger   logger.Logger

	mu   sync.Mutex
	last map[apperrors.ErrorCode]time.Time
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewNotifier builds SNS and SES clients for the configured region. A channel whose target
// is not configured is skipped.
func NewNotifier(ctx context.Context, cfg config.AlertsConfig, service string, log logger.Logger) (*Notifier, error) {
	var snsClient awsclient.SNSAPI
	var sesClient awsclient.SESAPI
	var err error

	if cfg.SNSTopicARN != "" {
		if snsClient, err = awsclient.NewSNSClient(ctx, cfg.Region); err != nil {
			return nil, fmt.Errorf("create sns client: %w", err)
		}
	}
	if cfg.SESFrom != "" && len(cfg.SESTo) > 0 {
		if sesClient, err = awsclient.NewSESClient(ctx, cfg.Region); err != nil {
			return nil, fmt.Errorf("create ses client: %w", err)
		}
	}

	return NewNotifierWithClients(snsClient, sesClient, cfg, service, log), nil
}

func NewNotifierWithClients(snsClient awsclient.SNSAPI, sesClient awsclient.SESAPI, cfg config.AlertsConfig, service string, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Notifier{
		sns:      snsClient,
		ses:      sesClient,
		topicARN: cfg.SNSTopicARN,
		from:     cfg.SESFrom,
		to:       cfg.SESTo,
		cooldown: config.GetDuration(cfg.Cooldown),
		service:  service,
		logger:   log.WithFields(map[string]interface{}{"component": "alerting"}),
		last:     make(map[apperrors.ErrorCode]time.Time),
		now:      time.Now,
	}
}

// Alert sends err in the background unless an alert for the same code went out within the
// cooldown.
func (n *Notifier) Alert(ctx context.Context, err *apperrors.StandardError) {
	if err == nil || !n.allow(err.Code) {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		if sendErr := n.Send(sendCtx, err); sendErr != nil {
			n.logger.Warn("alert delivery failed", map[string]interface{}{
				"error":     sendErr.Error(),
				"errorCode": string(err.Code),
			})
		}
	}()
}

// Send delivers err on every configured channel and reports the channels that failed.
func (n *Notifier) Send(ctx context.Context, err *apperrors.StandardError) error {
	subject := fmt.Sprintf("[%s] %s", n.service, err.Code)
	body := n.render(err)

	var errs []error
	if n.sns != nil {
		_, pubErr := n.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(n.topicARN),
			Subject:  aws.String(subject),
			Message:  aws.String(body),
		})
		if pubErr != nil {
			errs = append(errs, apperrors.NewNotificationSendFailedError("sns", pubErr))
		}
	}

	if n.ses != nil {
		_, sendErr := n.ses.SendEmail(ctx, &ses.SendEmailInput{
			Destination: &types.Destination{ToAddresses: n.to},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
			},
			Source: aws.String(n.from),
		})
		if sendErr != nil {
			errs = append(errs, apperrors.NewNotificationSendFailedError("ses", sendErr))
		}
	}

	if len(errs) == 0 {
		n.logger.Info("alert sent", map[string]interface{}{"errorCode": string(err.Code)})
	}
	return errors.Join(errs...)
}

// Wait blocks until alerts already handed to background delivery have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) allow(code apperrors.ErrorCode) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.last[code]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.last[code] = now
	return true
}

func (n *Notifier) render(err *apperrors.StandardError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n", n.service)
	fmt.Fprintf(&b, "Code: %s\n", err.Code)
	fmt.Fprintf(&b, "Message: %s\n", err.Message)
	if err.Details != "" {
		fmt.Fprintf(&b, "Details: %s\n", err.Details)
	}
	fmt.Fprintf(&b, "Time: %s\n", err.Timestamp.Format(time.RFC3339))
	return b.String()
}
