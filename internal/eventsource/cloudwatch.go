package eventsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/jmespath/go-jmespath"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/severity"
	"golang.org/x/time/rate"
)

// LogsClient is the subset of the CloudWatch Logs API the reader uses.
type LogsClient interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// CloudWatchConfig maps channels to log groups and describes how to mine
// JSON messages for event fields.
type CloudWatchConfig struct {
	Groups   map[model.Channel]string
	Lookback time.Duration
	Rate     float64 // FilterLogEvents calls per second, 0 = unlimited
	Batch    int

	SeverityPath string
	SourcePath   string
	EventIDPath  string
	MessagePath  string

	Location *time.Location
	// Now is used when Open's context carries no reference time (WithNow).
	Now func() time.Time
}

// CloudWatch reads CloudWatch Logs groups as event channels.
type CloudWatch struct {
	client  LogsClient
	cfg     CloudWatchConfig
	limiter *rate.Limiter

	severityExpr *jmespath.JMESPath
	sourceExpr   *jmespath.JMESPath
	eventIDExpr  *jmespath.JMESPath
	messageExpr  *jmespath.JMESPath
}

// NewCloudWatchClient loads AWS configuration for region and profile and
// returns a CloudWatch Logs client. Both may be empty to use the default
// resolution chain; AWS_PROFILE is honoured when profile is empty.
func NewCloudWatchClient(ctx context.Context, region, profile string) (*cloudwatchlogs.Client, error) {
	var cfgOpts []func(*config.LoadOptions) error
	if region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(region))
	}
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	if profile != "" {
		cfgOpts = append(cfgOpts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, err
	}
	return cloudwatchlogs.NewFromConfig(cfg), nil
}

// NewCloudWatch creates a reader. Empty JMESPath fields use the defaults
// level, source, event_id and message.
func NewCloudWatch(client LogsClient, cfg CloudWatchConfig) (*CloudWatch, error) {
	if client == nil {
		return nil, fmt.Errorf("cloudwatch: nil client")
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 720 * time.Hour
	}
	if cfg.Batch <= 0 {
		cfg.Batch = model.DefaultBatchSize
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cw := &CloudWatch{client: client, cfg: cfg}
	if cfg.Rate > 0 {
		cw.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	var err error
	if cw.severityExpr, err = compilePath(cfg.SeverityPath, "level"); err != nil {
		return nil, err
	}
	if cw.sourceExpr, err = compilePath(cfg.SourcePath, "source"); err != nil {
		return nil, err
	}
	if cw.eventIDExpr, err = compilePath(cfg.EventIDPath, "event_id"); err != nil {
		return nil, err
	}
	if cw.messageExpr, err = compilePath(cfg.MessagePath, "message"); err != nil {
		return nil, err
	}
	return cw, nil
}

func compilePath(path, fallback string) (*jmespath.JMESPath, error) {
	if strings.TrimSpace(path) == "" {
		path = fallback
	}
	expr, err := jmespath.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("cloudwatch: invalid jmespath %q: %w", path, err)
	}
	return expr, nil
}

func (cw *CloudWatch) Name() string { return "cloudwatch" }

// Open fetches the lookback range of the channel's log group and serves it
// newest-first. Any API failure while fetching makes the channel unavailable.
func (cw *CloudWatch) Open(ctx context.Context, ch model.Channel) (Handle, error) {
	group := cw.cfg.Groups[ch]
	if group == "" {
		return nil, Unavailable(ch, fmt.Errorf("no log group configured"))
	}

	end := NowFrom(ctx, cw.cfg.Now)
	start := end.Add(-cw.cfg.Lookback)

	type stamped struct {
		ms  int64
		rec RawRecord
	}
	var events []stamped
	var next *string
	for {
		if cw.limiter != nil {
			if err := cw.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		out, err := cw.client.FilterLogEvents(ctx, &cloudwatchlogs.FilterLogEventsInput{
			LogGroupName: aws.String(group),
			StartTime:    aws.Int64(start.UnixMilli()),
			EndTime:      aws.Int64(end.UnixMilli()),
			NextToken:    next,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, Unavailable(ch, fmt.Errorf("filter %s: %w", group, err))
		}
		for _, e := range out.Events {
			ms := aws.ToInt64(e.Timestamp)
			events = append(events, stamped{ms: ms, rec: cw.toRaw(ms, aws.ToString(e.LogStreamName), aws.ToString(e.Message))})
		}
		if out.NextToken == nil || (next != nil && aws.ToString(out.NextToken) == aws.ToString(next)) {
			break
		}
		next = out.NextToken
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].ms > events[j].ms })
	recs := make([]RawRecord, len(events))
	for i, e := range events {
		recs[i] = e.rec
	}
	return newSliceHandle(recs, cw.cfg.Batch), nil
}

// toRaw maps one log event. JSON messages are mined with the configured
// paths; anything else is treated as plain text from the log stream.
func (cw *CloudWatch) toRaw(ms int64, stream, message string) RawRecord {
	rec := RawRecord{
		TimeGenerated: FormatTime(time.UnixMilli(ms).In(cw.cfg.Location)),
		SourceName:    stream,
		Message:       message,
	}

	var doc any
	if err := json.Unmarshal([]byte(message), &doc); err != nil {
		rec.EventType = severity.ExtractCodeFromText(message)
		return rec
	}
	if _, ok := doc.(map[string]any); !ok {
		rec.EventType = severity.ExtractCodeFromText(message)
		return rec
	}

	if v, ok := searchString(cw.severityExpr, doc); ok {
		rec.EventType = severity.CodeFromName(v)
	}
	if v, ok := searchString(cw.sourceExpr, doc); ok {
		rec.SourceName = v
	}
	if v, ok := searchString(cw.eventIDExpr, doc); ok {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			rec.EventID = uint32(id)
		}
	}
	if v, ok := searchString(cw.messageExpr, doc); ok {
		rec.Message = v
	}
	return rec
}

func searchString(expr *jmespath.JMESPath, doc any) (string, bool) {
	res, err := expr.Search(doc)
	if err != nil || res == nil {
		return "", false
	}
	switch v := res.(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
