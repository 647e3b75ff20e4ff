package eventsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/severity"
)

// mockLogsAPI implements LogsClient for testing.
type mockLogsAPI struct {
	responses []*cloudwatchlogs.FilterLogEventsOutput
	inputs    []*cloudwatchlogs.FilterLogEventsInput
	err       error
	call      int
}

func (m *mockLogsAPI) FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	if m.call < len(m.responses) {
		r := m.responses[m.call]
		m.call++
		return r, nil
	}
	m.call++
	return &cloudwatchlogs.FilterLogEventsOutput{}, nil
}

func TestCloudWatchOpenPaginatesAndReverses(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	ts := func(d time.Duration) *int64 { return aws.Int64(now.Add(-d).UnixMilli()) }

	api := &mockLogsAPI{responses: []*cloudwatchlogs.FilterLogEventsOutput{
		{
			Events: []types.FilteredLogEvent{
				{Timestamp: ts(3 * time.Hour), LogStreamName: aws.String("i-1"), Message: aws.String(`{"level":"error","source":"Disk","event_id":3221225489,"message":"bad block"}`)},
				{Timestamp: ts(2 * time.Hour), LogStreamName: aws.String("i-1"), Message: aws.String("WARN: slow response")},
			},
			NextToken: aws.String("A"),
		},
		{
			Events: []types.FilteredLogEvent{
				{Timestamp: ts(time.Hour), LogStreamName: aws.String("i-2"), Message: aws.String(`{"level":"info","message":"started"}`)},
			},
			NextToken: aws.String("A"),
		},
	}}

	cw, err := NewCloudWatch(api, CloudWatchConfig{
		Groups:   map[model.Channel]string{model.ChannelApplication: "/app/web"},
		Lookback: 24 * time.Hour,
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewCloudWatch: %v", err)
	}

	h, err := cw.Open(context.Background(), model.ChannelApplication)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if api.call != 2 {
		t.Fatalf("FilterLogEvents calls = %d, want 2", api.call)
	}
	in := api.inputs[0]
	if aws.ToString(in.LogGroupName) != "/app/web" {
		t.Fatalf("LogGroupName = %q", aws.ToString(in.LogGroupName))
	}
	if aws.ToInt64(in.StartTime) != now.Add(-24*time.Hour).UnixMilli() || aws.ToInt64(in.EndTime) != now.UnixMilli() {
		t.Fatalf("unexpected time range %d..%d", aws.ToInt64(in.StartTime), aws.ToInt64(in.EndTime))
	}

	recs, err := h.ReadBatch(context.Background())
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}

	if recs[0].Message != "started" || recs[0].EventType != severity.CodeInformation || recs[0].SourceName != "i-2" {
		t.Errorf("newest record = %+v", recs[0])
	}
	if recs[1].Message != "WARN: slow response" || recs[1].EventType != severity.CodeWarning || recs[1].SourceName != "i-1" {
		t.Errorf("plain text record = %+v", recs[1])
	}
	oldest := recs[2]
	if oldest.EventType != severity.CodeError || oldest.SourceName != "Disk" || oldest.EventID != 3221225489 || oldest.Message != "bad block" {
		t.Errorf("json record = %+v", oldest)
	}
	if oldest.TimeGenerated != "Sun Oct 18 09:00:00 2026" {
		t.Errorf("TimeGenerated = %q", oldest.TimeGenerated)
	}
}

func TestCloudWatchRangeFollowsContextTime(t *testing.T) {
	runNow := time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)
	api := &mockLogsAPI{}
	cw, err := NewCloudWatch(api, CloudWatchConfig{
		Groups:   map[model.Channel]string{model.ChannelSystem: "/sys"},
		Lookback: 720 * time.Hour,
		Now:      func() time.Time { return runNow.Add(90 * time.Minute) },
	})
	if err != nil {
		t.Fatalf("NewCloudWatch: %v", err)
	}

	h, err := cw.Open(WithNow(context.Background(), runNow), model.ChannelSystem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	in := api.inputs[0]
	if aws.ToInt64(in.EndTime) != runNow.UnixMilli() {
		t.Fatalf("EndTime = %d, want %d", aws.ToInt64(in.EndTime), runNow.UnixMilli())
	}
	if aws.ToInt64(in.StartTime) != runNow.Add(-720*time.Hour).UnixMilli() {
		t.Fatalf("StartTime = %d", aws.ToInt64(in.StartTime))
	}
}

func TestNowFromFallsBack(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := NowFrom(context.Background(), func() time.Time { return fixed }); !got.Equal(fixed) {
		t.Fatalf("NowFrom = %v, want fallback %v", got, fixed)
	}
}

func TestCloudWatchUnavailable(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		cw, err := NewCloudWatch(&mockLogsAPI{err: errors.New("AccessDeniedException")}, CloudWatchConfig{
			Groups: map[model.Channel]string{model.ChannelSystem: "/os/system"},
		})
		if err != nil {
			t.Fatalf("NewCloudWatch: %v", err)
		}
		if _, err := cw.Open(context.Background(), model.ChannelSystem); !errors.Is(err, ErrSourceUnavailable) {
			t.Fatalf("Open error = %v, want ErrSourceUnavailable", err)
		}
	})

	t.Run("unmapped channel", func(t *testing.T) {
		cw, err := NewCloudWatch(&mockLogsAPI{}, CloudWatchConfig{})
		if err != nil {
			t.Fatalf("NewCloudWatch: %v", err)
		}
		if _, err := cw.Open(context.Background(), model.ChannelSecurity); !errors.Is(err, ErrSourceUnavailable) {
			t.Fatalf("Open error = %v, want ErrSourceUnavailable", err)
		}
	})
}

func TestCloudWatchCustomPaths(t *testing.T) {
	api := &mockLogsAPI{responses: []*cloudwatchlogs.FilterLogEventsOutput{{
		Events: []types.FilteredLogEvent{{
			Timestamp:     aws.Int64(time.Now().UnixMilli()),
			LogStreamName: aws.String("stream"),
			Message:       aws.String(`{"evt":{"sev":"Critical","provider":"Kernel-Power","id":"41"},"text":"rebooted"}`),
		}},
	}}}
	cw, err := NewCloudWatch(api, CloudWatchConfig{
		Groups:       map[model.Channel]string{model.ChannelSystem: "/os/system"},
		SeverityPath: "evt.sev",
		SourcePath:   "evt.provider",
		EventIDPath:  "evt.id",
		MessagePath:  "text",
	})
	if err != nil {
		t.Fatalf("NewCloudWatch: %v", err)
	}
	h, err := cw.Open(context.Background(), model.ChannelSystem)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	recs, _ := h.ReadBatch(context.Background())
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.EventType != severity.CodeError || r.SourceName != "Kernel-Power" || r.EventID != 41 || r.Message != "rebooted" {
		t.Fatalf("record = %+v", r)
	}
}

func TestNewCloudWatchRejectsBadPath(t *testing.T) {
	if _, err := NewCloudWatch(&mockLogsAPI{}, CloudWatchConfig{SeverityPath: "a[?"}); err == nil {
		t.Fatal("expected compile error for invalid jmespath")
	}
}
